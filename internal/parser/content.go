package parser

import (
	"errors"
	"fmt"

	"mailinchat/backend/internal/domain"
)

// ErrMissingSender From 头中没有可识别的邮箱地址
var ErrMissingSender = errors.New("message has no sender address")

// BuildContent 从邮件级邮件头提取发件人与收件人，并在此时才解码纯文本正文。
func BuildContent(msg *domain.ParsedMessage) (*domain.MailContent, error) {
	from := FirstAddress(msg.From())
	if from == "" {
		return nil, fmt.Errorf("message %s: %w", msg.ID, ErrMissingSender)
	}

	to := ExtractAddresses(msg.To())
	cc := ExtractAddresses(msg.Cc())

	text := ""
	if msg.TextPlain != "" {
		decoded, err := DecodeText(msg.TextPlain, msg.TextPlainCharset)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		text = EscapeText(decoded)
	}

	attachments := make([]domain.MailAttachment, 0, len(msg.Attachments))
	for _, ref := range msg.Attachments {
		attachments = append(attachments, domain.MailAttachment{
			AttachmentID: ref.AttachmentID,
			MimeType:     ref.MimeType,
			Filename:     ref.Filename,
		})
	}

	return &domain.MailContent{
		MessageID:    msg.ID,
		ThreadID:     msg.ThreadID,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		From:         from,
		To:           to,
		Cc:           cc,
		ToAlias:      Aliases(to),
		CcAlias:      Aliases(cc),
		Subject:      msg.Subject(),
		Date:         msg.Date(),
		Text:         text,
		HTML:         msg.TextHTML,
		Attachments:  attachments,
		Inline:       msg.Inline,
	}, nil
}
