package httptransport

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"mailinchat/backend/internal/gmail"
	"mailinchat/backend/internal/parser"
	"mailinchat/backend/internal/service"
)

// errorMapping 业务错误到 HTTP 状态码与中文消息的映射
type errorMapping struct {
	err    error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	{service.ErrInvalidAttachment, http.StatusBadRequest, "缺少邮件ID或附件ID"},
	{parser.ErrMissingSender, http.StatusUnprocessableEntity, "邮件缺少发件人地址"},
	{gobreaker.ErrOpenState, http.StatusServiceUnavailable, MsgProviderUnavailable},
	{gobreaker.ErrTooManyRequests, http.StatusServiceUnavailable, MsgProviderUnavailable},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	_, msg := classifyError(err, "")
	return msg
}

// classifyError 返回错误对应的状态码与消息，未知错误按上游错误处理
func classifyError(err error, fallback string) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	if gmail.IsNotFound(err) {
		return http.StatusNotFound, MsgResourceNotFound
	}
	if fallback == "" {
		fallback = err.Error()
	}
	return http.StatusBadGateway, fallback
}

// 通用错误消息
const (
	MsgResourceNotFound    = "邮件或附件不存在"
	MsgProviderUnavailable = "邮件服务暂时不可用，请稍后重试"

	MsgLabelListFailed    = "获取标签列表失败"
	MsgFetchRequestFailed = "提交抓取任务失败"
	MsgParseFailed        = "解析邮件失败"
	MsgPartialDelivery    = "部分收件人投递失败"
	MsgNoRecipients       = "没有匹配的收件人，邮件已跳过"
	MsgAttachmentFailed   = "获取附件失败"
)
