package media

import (
	"context"
	"errors"
	"fmt"

	"DoorbellCall/apps/caller/internal/backend"
	"DoorbellCall/pkg/minio"
)

// ErrEmptyPhoto 没有照片数据
var ErrEmptyPhoto = errors.New("photo is empty")

// Photo 待上传的照片
type Photo struct {
	FileName string
	Data     []byte
}

// Uploaded 上传后可登记到会话的地址
type Uploaded struct {
	URL    string
	FileID string
}

// Uploader 照片上传
type Uploader interface {
	Upload(ctx context.Context, photo Photo) (*Uploaded, error)
}

// mediaAPI backend.Client 中上传用到的部分
type mediaAPI interface {
	UploadMedia(ctx context.Context, fileName string, data []byte) (*backend.MediaFile, error)
}

// HTTPUploader 通过后端 /media/upload 上传
type HTTPUploader struct {
	api mediaAPI
}

func NewHTTPUploader(api mediaAPI) *HTTPUploader {
	return &HTTPUploader{api: api}
}

func (u *HTTPUploader) Upload(ctx context.Context, photo Photo) (*Uploaded, error) {
	if len(photo.Data) == 0 {
		return nil, ErrEmptyPhoto
	}
	file, err := u.api.UploadMedia(ctx, photo.FileName, photo.Data)
	if err != nil {
		return nil, err
	}
	return &Uploaded{URL: file.URL, FileID: file.FileID}, nil
}

// photoStore pkg/minio 客户端中上传用到的部分
type photoStore interface {
	UploadPhoto(ctx context.Context, data []byte, fileName string) (*minio.UploadResult, error)
}

// MinIOUploader 直接写对象存储，后端只登记 URL
type MinIOUploader struct {
	store photoStore
}

func NewMinIOUploader(store photoStore) *MinIOUploader {
	return &MinIOUploader{store: store}
}

func (u *MinIOUploader) Upload(ctx context.Context, photo Photo) (*Uploaded, error) {
	if len(photo.Data) == 0 {
		return nil, ErrEmptyPhoto
	}
	res, err := u.store.UploadPhoto(ctx, photo.Data, photo.FileName)
	if err != nil {
		return nil, fmt.Errorf("object storage upload: %w", err)
	}
	return &Uploaded{URL: res.URL, FileID: res.ObjectName}, nil
}
