package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"DoorbellCall/config"
	"DoorbellCall/pkg/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrTypeNotAllowed 文件类型不在允许列表中
var ErrTypeNotAllowed = errors.New("minio: content type not allowed")

// ErrTooLarge 文件超过大小限制
var ErrTooLarge = errors.New("minio: file too large")

// objectPutter minio.Client 中上传用到的部分，测试时替换
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOClient 访客照片对象存储封装
type MinIOClient struct {
	client objectPutter
	config config.MinIOConfig
}

// New 使用已有的上传实现创建封装（不检查 bucket）
func New(client objectPutter, cfg config.MinIOConfig) *MinIOClient {
	return &MinIOClient{client: client, config: cfg}
}

// Build 基于配置创建 MinIO 客户端，并确保 Bucket 存在
func Build(ctx context.Context, cfg config.MinIOConfig) (*MinIOClient, error) {
	// 1. 验证必填配置
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is empty")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, errors.New("minio credentials are empty")
	}
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, errors.New("minio bucketName is empty")
	}

	// 2. 创建 MinIO 客户端
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	// 3. 确保 Bucket 存在
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := mc.BucketExists(checkCtx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket exists: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(checkCtx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Location}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info(ctx, "MinIO Bucket 创建成功",
			logger.String("bucket", cfg.BucketName),
			logger.String("location", cfg.Location),
		)

		// 被叫端直接用 URL 拉取访客照片，需要公开读
		if cfg.PublicRead {
			policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, cfg.BucketName)
			if err := mc.SetBucketPolicy(checkCtx, cfg.BucketName, policy); err != nil {
				logger.Warn(ctx, "设置 Bucket 公开策略失败",
					logger.String("bucket", cfg.BucketName),
					logger.ErrorField("error", err),
				)
			}
		}
	}

	return New(mc, cfg), nil
}

// UploadResult 上传结果
type UploadResult struct {
	ObjectName  string // 完整对象路径，如 visitors/uuid.jpg
	Size        int64
	ETag        string
	URL         string // 对外访问地址
	ContentType string
}

// UploadPhoto 上传访客照片。
// 内容类型以文件头检测结果为准，fileName 只用来取扩展名。
func (c *MinIOClient) UploadPhoto(ctx context.Context, data []byte, fileName string) (*UploadResult, error) {
	size := int64(len(data))
	if c.config.MaxFileSize > 0 && size > c.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, c.config.MaxFileSize)
	}

	contentType := http.DetectContentType(data)
	if len(c.config.AllowedTypes) > 0 && !c.isAllowedType(contentType) {
		logger.Warn(ctx, "照片类型不在允许列表中",
			logger.String("detected_type", contentType),
			logger.Strings("allowed_types", c.config.AllowedTypes),
		)
		return nil, fmt.Errorf("%w: %s", ErrTypeNotAllowed, contentType)
	}

	objectName := c.objectName(fileName, contentType)

	uploadCtx := ctx
	if c.config.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, c.config.UploadTimeout)
		defer cancel()
	}

	info, err := c.client.PutObject(uploadCtx, c.config.BucketName, objectName, bytes.NewReader(data), size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		logger.Error(ctx, "MinIO 上传失败",
			logger.String("object", objectName),
			logger.Int64("size", size),
			logger.ErrorField("error", err),
		)
		return nil, fmt.Errorf("minio put %s: %w", objectName, err)
	}

	url := c.objectURL(objectName)
	logger.Info(ctx, "MinIO 上传成功",
		logger.String("object", objectName),
		logger.String("url", url),
		logger.Int64("size", info.Size),
	)

	return &UploadResult{
		ObjectName:  objectName,
		Size:        info.Size,
		ETag:        info.ETag,
		URL:         url,
		ContentType: contentType,
	}, nil
}

// objectName 前缀 + uuid + 扩展名（扩展名缺失时按内容类型补）
func (c *MinIOClient) objectName(fileName, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = extensionFor(contentType)
	}
	name := uuid.New().String() + ext
	if prefix := strings.Trim(c.config.PathPrefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

func (c *MinIOClient) objectURL(objectName string) string {
	baseURL := strings.TrimSuffix(c.config.BaseURL, "/")
	return fmt.Sprintf("%s/%s/%s", baseURL, c.config.BucketName, strings.TrimPrefix(objectName, "/"))
}

func (c *MinIOClient) isAllowedType(contentType string) bool {
	for _, allowed := range c.config.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
