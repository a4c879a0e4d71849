// Package parser 将邮件服务商返回的嵌套 MIME 节点树归一化为 ParsedMessage。
package parser

import (
	"mime"
	"strings"

	"mailinchat/backend/internal/domain"
)

// PartKind 带正文节点的分类结果
type PartKind int

const (
	PartNone PartKind = iota
	PartHTML
	PartPlain
	PartAttachment
	PartInline
)

func (k PartKind) String() string {
	switch k {
	case PartHTML:
		return "html"
	case PartPlain:
		return "plain"
	case PartAttachment:
		return "attachment"
	case PartInline:
		return "inline"
	default:
		return "none"
	}
}

// visit 是广度优先遍历队列中的一项，每个节点携带自己的邮件头。
type visit struct {
	part    *domain.RawPart
	headers domain.Headers
}

// Parse 广度优先遍历邮件的 MIME 树并提取正文、附件与内联资源。
//
// 根节点的邮件头决定邮件级元数据（from/to/cc/subject/date），
// 其余节点只用自己的邮件头做分类，不继承祖先节点。
// 同类正文出现多次时后访问者覆盖先访问者。
func Parse(msg *domain.RawMessage) *domain.ParsedMessage {
	result := &domain.ParsedMessage{
		ID:          msg.ID,
		ThreadID:    msg.ThreadID,
		LabelIDs:    msg.LabelIDs,
		Snippet:     msg.Snippet,
		HistoryID:   msg.HistoryID,
		Headers:     domain.Headers{},
		Attachments: []domain.AttachmentRef{},
		Inline:      []domain.AttachmentRef{},
	}
	if msg.InternalDate != 0 {
		internalDate := msg.InternalDate
		result.InternalDate = &internalDate
	}

	root := msg.Payload
	if root == nil {
		return result
	}
	result.Headers = domain.IndexHeaders(root.Headers)

	queue := []visit{{part: root, headers: result.Headers}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, child := range current.part.Parts {
			if child == nil {
				continue
			}
			queue = append(queue, visit{part: child, headers: domain.IndexHeaders(child.Headers)})
		}

		if !current.part.HasBody() {
			continue
		}

		switch Classify(current.part, current.headers) {
		case PartHTML:
			result.TextHTML = current.part.Body.Data
		case PartPlain:
			result.TextPlain = current.part.Body.Data
			result.TextPlainCharset = charsetOf(current.headers)
		case PartAttachment:
			result.Attachments = append(result.Attachments, refOf(current))
		case PartInline:
			result.Inline = append(result.Inline, refOf(current))
		}
	}

	return result
}

// Classify 按优先级对带正文的节点分类：
// 非附件 HTML > 非附件纯文本 > 附件 > 内联 > 无。
func Classify(part *domain.RawPart, headers domain.Headers) PartKind {
	if !part.HasBody() {
		return PartNone
	}

	disposition := strings.ToLower(headers.Get("content-disposition"))
	isHTML := strings.Contains(part.MimeType, "text/html")
	isPlain := strings.Contains(part.MimeType, "text/plain")
	isAttachment := part.Body.AttachmentID != "" || strings.Contains(disposition, "attachment")
	isInline := strings.Contains(disposition, "inline")

	switch {
	case isHTML && !isAttachment:
		return PartHTML
	case isPlain && !isAttachment:
		return PartPlain
	case isAttachment:
		return PartAttachment
	case isInline:
		return PartInline
	default:
		return PartNone
	}
}

func refOf(v visit) domain.AttachmentRef {
	return domain.AttachmentRef{
		Filename:     v.part.Filename,
		MimeType:     v.part.MimeType,
		Size:         v.part.Body.Size,
		AttachmentID: v.part.Body.AttachmentID,
		Headers:      v.headers,
	}
}

// charsetOf 从节点的 Content-Type 中读取 charset 参数
func charsetOf(headers domain.Headers) string {
	contentType := headers.Get("content-type")
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}
