package domain

import "strings"

// Header 邮件头（保持邮件服务商返回的原始顺序）
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PartBody 表示 MIME 节点的正文。
//
// Data 为 base64url 编码的内容；附件正文不内联，只带 AttachmentID。
type PartBody struct {
	Data         string `json:"data,omitempty"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachmentId,omitempty"`
}

// RawPart 表示邮件服务商返回的一个 MIME 节点，根节点即整封邮件。
type RawPart struct {
	PartID   string     `json:"partId,omitempty"`
	MimeType string     `json:"mimeType"`
	Filename string     `json:"filename,omitempty"`
	Headers  []Header   `json:"headers,omitempty"`
	Body     *PartBody  `json:"body,omitempty"`
	Parts    []*RawPart `json:"parts,omitempty"`
}

// HasBody 节点是否携带正文（没有正文的节点只作为容器）
func (p *RawPart) HasBody() bool {
	return p != nil && p.Body != nil
}

// RawMessage 是邮件服务商返回的完整邮件。
type RawMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds,omitempty"`
	Snippet      string   `json:"snippet"`
	HistoryID    string   `json:"historyId,omitempty"`
	InternalDate int64    `json:"internalDate,omitempty"` // 毫秒时间戳，0 表示未提供
	Payload      *RawPart `json:"payload,omitempty"`
}

// Headers 小写键的邮件头映射，同名头后出现者覆盖先出现者。
type Headers map[string]string

// IndexHeaders 将有序邮件头列表转为小写键映射
func IndexHeaders(headers []Header) Headers {
	indexed := make(Headers, len(headers))
	for _, h := range headers {
		indexed[strings.ToLower(h.Name)] = h.Value
	}
	return indexed
}

// Get 大小写不敏感地读取邮件头
func (h Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(name)]
}

// Has 邮件头是否存在
func (h Headers) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h[strings.ToLower(name)]
	return ok
}

// AttachmentRef 指向邮件中的一个附件或内联资源。
type AttachmentRef struct {
	Filename     string  `json:"filename,omitempty"`
	MimeType     string  `json:"mimeType,omitempty"`
	Size         int64   `json:"size,omitempty"`
	AttachmentID string  `json:"attachmentId,omitempty"`
	Headers      Headers `json:"headers,omitempty"`
}

// ParsedMessage 是由一棵 RawPart 树归一化得到的邮件，构造后不再修改。
type ParsedMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	LabelIDs     []string `json:"labelIds,omitempty"`
	Snippet      string   `json:"snippet"`
	HistoryID    string   `json:"historyId,omitempty"`
	InternalDate *int64   `json:"internalDate,omitempty"`

	// Headers 仅来自根节点
	Headers Headers `json:"headers"`

	TextPlain string `json:"textPlain,omitempty"`
	TextHTML  string `json:"textHtml,omitempty"`
	// TextPlainCharset 取自被选中的 text/plain 节点的 Content-Type
	TextPlainCharset string `json:"textPlainCharset,omitempty"`

	Attachments []AttachmentRef `json:"attachments"`
	Inline      []AttachmentRef `json:"inline"`
}

// From 返回原始 From 头
func (m *ParsedMessage) From() string { return m.Headers.Get("from") }

// To 返回原始 To 头
func (m *ParsedMessage) To() string { return m.Headers.Get("to") }

// Cc 返回原始 Cc 头
func (m *ParsedMessage) Cc() string { return m.Headers.Get("cc") }

// Subject 返回邮件主题
func (m *ParsedMessage) Subject() string { return m.Headers.Get("subject") }

// Date 返回 Date 头
func (m *ParsedMessage) Date() string { return m.Headers.Get("date") }

// Label 邮件服务商的标签
type Label struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	MessagesTotal  int64  `json:"messagesTotal"`
	MessagesUnread int64  `json:"messagesUnread"`
}
