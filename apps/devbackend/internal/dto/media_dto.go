package dto

// UploadMeta multipart 中 request 部分的 JSON
type UploadMeta struct {
	IDProcess string `json:"idProcess"`
}

// UploadResponse 上传结果
type UploadResponse struct {
	URL         string `json:"url"`
	FileID      string `json:"fileId"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// DoorbellResponse 门铃成员
type DoorbellResponse struct {
	Code            string   `json:"code"`
	MemberStreamIDs []string `json:"memberStreamIds"`
}
