package config

import "time"

// MinIOConfig 头像照片对象存储配置（media.driver=minio 时使用）
type MinIOConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`               // MinIO 服务地址，如: localhost:9000
	AccessKeyID     string `json:"accessKeyId" yaml:"accessKeyId"`         // Access Key
	SecretAccessKey string `json:"secretAccessKey" yaml:"secretAccessKey"` // Secret Key
	UseSSL          bool   `json:"useSSL" yaml:"useSSL"`                   // 是否使用 HTTPS

	BucketName string `json:"bucketName" yaml:"bucketName"` // 照片存储桶
	Location   string `json:"location" yaml:"location"`     // Bucket 区域
	PathPrefix string `json:"pathPrefix" yaml:"pathPrefix"` // 对象前缀，如: visitors/

	MaxFileSize   int64         `json:"maxFileSize" yaml:"maxFileSize"`     // 最大文件大小（字节）
	AllowedTypes  []string      `json:"allowedTypes" yaml:"allowedTypes"`   // 允许的图片类型
	UploadTimeout time.Duration `json:"uploadTimeout" yaml:"uploadTimeout"` // 上传超时时间

	PublicRead bool   `json:"publicRead" yaml:"publicRead"` // 照片需要被被叫端直接访问
	BaseURL    string `json:"baseUrl" yaml:"baseUrl"`       // 返回给后端登记的访问地址前缀
}

// MediaConfig 照片上传方式
type MediaConfig struct {
	Driver string      `json:"driver" yaml:"driver"` // http（后端 /media/upload）或 minio
	MinIO  MinIOConfig `json:"minio" yaml:"minio"`
}

const (
	MediaDriverHTTP  = "http"
	MediaDriverMinIO = "minio"
)

// DefaultMediaConfig 默认走后端上传接口
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		Driver: MediaDriverHTTP,
		MinIO:  DefaultMinIOConfig(),
	}
}

// DefaultMinIOConfig 返回本地开发的默认配置
func DefaultMinIOConfig() MinIOConfig {
	return MinIOConfig{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          false,

		BucketName: "doorbell-visitors",
		Location:   "us-east-1",
		PathPrefix: "visitors/",

		MaxFileSize:   10 * 1024 * 1024, // 10MB
		AllowedTypes:  []string{"image/jpeg", "image/png", "image/webp"},
		UploadTimeout: 30 * time.Second,

		PublicRead: true,
		BaseURL:    "http://localhost:9000",
	}
}
