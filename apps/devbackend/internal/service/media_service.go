package service

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DoorbellCall/config"
	"DoorbellCall/pkg/logger"

	"github.com/bwmarrin/snowflake"
	lru "github.com/hashicorp/golang-lru/v2"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// MediaFile 已上传的文件
type MediaFile struct {
	ID          string
	FileName    string
	ContentType string
	Size        int64
	Data        []byte
	URL         string
	CreatedAt   time.Time
}

// MediaService 上传文件保存在有界 LRU 中，超出容量时淘汰最久未访问的文件
type MediaService struct {
	files   *lru.Cache[string, *MediaFile]
	node    *snowflake.Node
	baseURL string
	maxSize int64
}

func NewMediaService(cfg config.DevBackendConfig) (*MediaService, error) {
	size := cfg.MediaCacheSize
	if size <= 0 {
		size = 512
	}
	files, err := lru.New[string, *MediaFile](size)
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, err
	}
	return &MediaService{
		files:   files,
		node:    node,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxSize: cfg.MaxUploadSize,
	}, nil
}

// Save 保存图片并返回访问地址
func (s *MediaService) Save(ctx context.Context, fileName string, data []byte) (*MediaFile, error) {
	if len(data) == 0 {
		return nil, ErrFileEmpty
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return nil, ErrFileType
	}

	id := strconv.FormatInt(s.node.Generate().Int64(), 10)
	f := &MediaFile{
		ID:          id,
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
		URL:         s.baseURL + "/media/" + id,
		CreatedAt:   time.Now(),
	}
	if evicted := s.files.Add(id, f); evicted {
		logger.Debug(ctx, "媒体缓存已满，淘汰最旧文件")
	}
	logger.Info(ctx, "文件已上传",
		logger.String("file_id", id),
		logger.String("content_type", contentType),
		logger.Int64("size", f.Size),
	)
	return f, nil
}

// Get 读取文件
func (s *MediaService) Get(id string) (*MediaFile, error) {
	f, ok := s.files.Get(id)
	if !ok {
		return nil, ErrFileNotFound
	}
	return f, nil
}
