package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
)

// IngestAPI 抓取流水线对外暴露的操作
type IngestAPI interface {
	ListLabels(ctx context.Context) ([]domain.Label, error)
	RequestCycle(ctx context.Context) error
	ParseAndSave(ctx context.Context, messageID string) (*domain.FanOutResult, error)
}

// AttachmentAPI 附件缓存网关
type AttachmentAPI interface {
	Get(ctx context.Context, messageID string, ref domain.AttachmentRef) (*domain.AttachmentCacheEntry, error)
}

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	ingest      IngestAPI
	attachments AttachmentAPI
	log         *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(ingest IngestAPI, attachments AttachmentAPI, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		ingest:      ingest,
		attachments: attachments,
		log:         log,
	}
}

// ListLabels 列出邮箱标签
// GET {prefix}/labels
func (h *Handler) ListLabels(c *gin.Context) {
	labels, err := h.ingest.ListLabels(c.Request.Context())
	if err != nil {
		h.fail(c, err, MsgLabelListFailed)
		return
	}
	Success(c, labels)
}

// RequestFetch 立即提交一次抓取任务
// POST {prefix}/fetch
func (h *Handler) RequestFetch(c *gin.Context) {
	if err := h.ingest.RequestCycle(c.Request.Context()); err != nil {
		h.log.Error("failed to request fetch cycle", zap.Error(err))
		InternalError(c, MsgFetchRequestFailed)
		return
	}
	Accepted(c, "已提交抓取任务")
}

// ParseMessage 同步解析并投递单封邮件，用于人工补投
// POST {prefix}/messages/:messageId/parse
func (h *Handler) ParseMessage(c *gin.Context) {
	messageID := c.Param("messageId")

	result, err := h.ingest.ParseAndSave(c.Request.Context(), messageID)
	switch {
	case err != nil && result != nil:
		c.JSON(http.StatusInternalServerError, Response{
			Code: CodeInternalError,
			Msg:  MsgPartialDelivery,
			Data: result,
		})
	case err != nil:
		h.fail(c, err, MsgParseFailed)
	case result == nil:
		SuccessWithMsg(c, MsgNoRecipients, nil)
	default:
		Success(c, result)
	}
}

// GetAttachment 读取附件内容（标准 base64）
// GET {prefix}/attachments/:messageId/:attachmentId?mimeType=&filename=
func (h *Handler) GetAttachment(c *gin.Context) {
	entry, err := h.attachments.Get(c.Request.Context(), c.Param("messageId"), domain.AttachmentRef{
		AttachmentID: c.Param("attachmentId"),
		MimeType:     c.Query("mimeType"),
		Filename:     c.Query("filename"),
	})
	if err != nil {
		h.fail(c, err, MsgAttachmentFailed)
		return
	}
	Success(c, entry)
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	status, msg := classifyError(err, fallback)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	Error(c, status, msg)
}
