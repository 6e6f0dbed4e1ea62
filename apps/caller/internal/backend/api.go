package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"DoorbellCall/model"
	"DoorbellCall/pkg/result"
	"DoorbellCall/pkg/util"
)

// SessionGrant 创建/登记会话返回的凭证。
// ExpiresIn 为 0 表示后端没有给出，由调用方使用默认值。
type SessionGrant struct {
	SessionID string
	Token     string
	ExpiresIn time.Duration
}

// MediaFile 上传结果
type MediaFile struct {
	URL    string
	FileID string
}

type startSessionReq struct {
	IDProcess string `json:"idProcess"`
	MAC       string `json:"mac"`
}

type completeSessionReq struct {
	IDProcess string `json:"idProcess"`
	MAC       string `json:"mac"`
	ImgURL    string `json:"imgUrl"`
	SessionID string `json:"sessionId,omitempty"`
}

type updatePhotoReq struct {
	IDProcess string `json:"idProcess"`
	ImgURL    string `json:"imgUrl"`
}

type uploadMeta struct {
	IDProcess string `json:"idProcess"`
}

// StartSession 用设备 MAC 换取匿名会话。走公开接口，不携带旧 token。
func (c *Client) StartSession(ctx context.Context, mac string) (*SessionGrant, error) {
	pid := util.NewProcessID()
	body, err := c.doJSON(ctx, "start_session", http.MethodPost, "/anonymous-sessions/iniciar", false, pid,
		startSessionReq{IDProcess: pid, MAC: mac})
	if err != nil {
		return nil, err
	}
	grant, err := parseGrant(body)
	if err != nil {
		return nil, err
	}
	if grant.Token == "" || grant.SessionID == "" {
		return nil, fmt.Errorf("%w: session start without token or sessionId", ErrBadResponse)
	}
	return grant, nil
}

// CompleteSession 首次登记照片（旧版创建会话接口），返回的 token/sessionId 可能为空
func (c *Client) CompleteSession(ctx context.Context, mac, imgURL, sessionID string) (*SessionGrant, error) {
	pid := util.NewProcessID()
	body, err := c.doJSON(ctx, "complete_session", http.MethodPost, "/anonymous-sessions", true, pid,
		completeSessionReq{IDProcess: pid, MAC: mac, ImgURL: imgURL, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return parseGrant(body)
}

// UpdateSessionPhoto 已登记会话更换照片
func (c *Client) UpdateSessionPhoto(ctx context.Context, sessionID, imgURL string) error {
	pid := util.NewProcessID()
	path := "/anonymous-sessions/upload-mediafile/" + url.PathEscape(sessionID)
	_, err := c.doJSON(ctx, "update_photo", http.MethodPut, path, true, pid,
		updatePhotoReq{IDProcess: pid, ImgURL: imgURL})
	return err
}

// UploadMedia multipart 上传：file 部分为图片，request 部分为 JSON {idProcess}
func (c *Client) UploadMedia(ctx context.Context, fileName string, data []byte) (*MediaFile, error) {
	pid := util.NewProcessID()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(uploadMeta{IDProcess: pid})
	if err != nil {
		return nil, err
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="request"`)
	h.Set("Content-Type", "application/json")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write(meta); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	body, err := c.do(ctx, request{
		endpoint:    "upload_media",
		method:      http.MethodPost,
		path:        "/media/upload",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		auth:        true,
		processID:   pid,
		timeout:     c.cfg.UploadTimeout,
	})
	if err != nil {
		return nil, err
	}

	f, err := result.ParseFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	file := &MediaFile{
		URL:    f.String("url", "fileUrl", "downloadUrl", "link"),
		FileID: f.String("fileId", "id", "file_id"),
	}
	if file.URL == "" {
		return nil, fmt.Errorf("%w: upload response without url", ErrBadResponse)
	}
	return file, nil
}

// GetDoorbell 查询门铃成员；响应里没有 memberStreamIds 时返回空列表
func (c *Client) GetDoorbell(ctx context.Context, code string) (*model.Doorbell, error) {
	body, err := c.do(ctx, request{
		endpoint:  "get_doorbell",
		method:    http.MethodGet,
		path:      "/public/doorbells/" + url.PathEscape(code),
		auth:      true,
		processID: util.NewProcessID(),
	})
	if err != nil {
		return nil, err
	}
	f, err := result.ParseFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	ids := f.Strings("memberStreamIds")
	if ids == nil {
		ids = []string{}
	}
	return &model.Doorbell{Code: code, MemberStreamIDs: ids}, nil
}

func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, auth bool, pid string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		endpoint:    endpoint,
		method:      method,
		path:        path,
		body:        raw,
		contentType: "application/json",
		auth:        auth,
		processID:   pid,
	})
}

func parseGrant(body []byte) (*SessionGrant, error) {
	f, err := result.ParseFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	grant := &SessionGrant{
		SessionID: f.String("sessionId"),
		Token:     f.String("token"),
	}
	if secs, ok := f.Int64("expiresIn"); ok && secs > 0 {
		grant.ExpiresIn = time.Duration(secs) * time.Second
	}
	return grant, nil
}
