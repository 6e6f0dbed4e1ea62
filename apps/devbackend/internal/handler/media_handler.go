package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"DoorbellCall/apps/devbackend/internal/dto"
	"DoorbellCall/apps/devbackend/internal/service"
	"DoorbellCall/consts"
	"DoorbellCall/pkg/logger"
	"DoorbellCall/pkg/result"

	"github.com/gin-gonic/gin"
)

// multipart 表单除文件外的余量
const multipartOverhead = 1 << 20

// MediaService 文件存储
type MediaService interface {
	Save(ctx context.Context, fileName string, data []byte) (*service.MediaFile, error)
	Get(id string) (*service.MediaFile, error)
}

// MediaHandler 媒体上传与下载
type MediaHandler struct {
	media   MediaService
	maxSize int64
}

func NewMediaHandler(media MediaService, maxSize int64) *MediaHandler {
	return &MediaHandler{media: media, maxSize: maxSize}
}

// Upload multipart 上传：file 为文件，request 为 JSON {idProcess}
// @Router /api/media/upload [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	if h.maxSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)
	}

	// 1. 读取文件
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			result.Fail(c, http.StatusRequestEntityTooLarge, consts.CodeBodyTooLarge)
			return
		}
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}
	if h.maxSize > 0 && fh.Size > h.maxSize {
		result.Fail(c, http.StatusRequestEntityTooLarge, consts.CodeBodyTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		return
	}

	// 2. request 部分可选，只用于日志串联
	var meta dto.UploadMeta
	if raw := c.PostForm("request"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			result.Fail(c, http.StatusBadRequest, consts.CodeBodyError)
			return
		}
	}

	// 3. 保存
	saved, err := h.media.Save(ctx, fh.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileEmpty), errors.Is(err, service.ErrFileType):
			result.Fail(c, http.StatusBadRequest, consts.CodeParamError)
		case errors.Is(err, service.ErrFileTooLarge):
			result.Fail(c, http.StatusRequestEntityTooLarge, consts.CodeBodyTooLarge)
		default:
			logger.Error(ctx, "保存上传文件失败",
				logger.String("id_process", meta.IDProcess),
				logger.ErrorField("error", err),
			)
			result.Fail(c, http.StatusInternalServerError, consts.CodeUploadFailed)
		}
		return
	}

	result.Created(c, dto.UploadResponse{
		URL:         saved.URL,
		FileID:      saved.ID,
		ContentType: saved.ContentType,
		Size:        saved.Size,
	})
}

// Download 读取已上传的文件
// @Router /api/media/{fileId} [get]
func (h *MediaHandler) Download(c *gin.Context) {
	f, err := h.media.Get(c.Param("fileId"))
	if err != nil {
		result.Fail(c, http.StatusNotFound, consts.CodeResourceNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, f.ContentType, f.Data)
}
