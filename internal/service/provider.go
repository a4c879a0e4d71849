package service

import (
	"context"

	"mailinchat/backend/internal/domain"
)

// MailProvider 邮件服务商
type MailProvider interface {
	// ListMessageIDs 列出同时带有全部标签的邮件 id
	ListMessageIDs(ctx context.Context, labelIDs []string) ([]string, error)
	GetMessage(ctx context.Context, messageID string) (*domain.RawMessage, error)
	// MarkRead 批量移除未读标签
	MarkRead(ctx context.Context, messageIDs []string) error
	// GetAttachment 返回 base64url 编码的附件内容
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
	ListLabels(ctx context.Context) ([]domain.Label, error)
}

// TaskPublisher 向队列主题发布任务
type TaskPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// ParseTask 解析任务载荷
type ParseTask struct {
	MessageID string `json:"messageId"`
}

// AttachmentTask 附件预取任务载荷
type AttachmentTask struct {
	MessageID    string `json:"messageId"`
	AttachmentID string `json:"attachmentId"`
	MimeType     string `json:"mimeType"`
	Filename     string `json:"filename"`
}
