package domain

import "fmt"

// AttachmentCacheEntry 附件缓存值，写入后不就地更新。
type AttachmentCacheEntry struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Base64   string `json:"base64"` // 标准 base64 编码的附件内容
}

// AttachmentCacheKey 返回附件的缓存键
func AttachmentCacheKey(attachmentID string) string {
	return fmt.Sprintf("attachment:%s", attachmentID)
}

// MailAttachment 是聊天消息里携带的附件摘要，下载时再按需拉取内容。
type MailAttachment struct {
	AttachmentID string `json:"attachmentId"`
	MimeType     string `json:"mimeType"`
	Filename     string `json:"filename"`
}

// Ref 转换为附件引用
func (a MailAttachment) Ref() AttachmentRef {
	return AttachmentRef{
		AttachmentID: a.AttachmentID,
		MimeType:     a.MimeType,
		Filename:     a.Filename,
	}
}
