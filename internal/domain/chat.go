package domain

import (
	"errors"
	"fmt"
	"time"
)

// MailContent 聊天消息携带的邮件内容（ParsedMessage 的消费视图）。
type MailContent struct {
	MessageID    string           `json:"messageId"`
	ThreadID     string           `json:"threadId"`
	Snippet      string           `json:"snippet"`
	InternalDate *int64           `json:"internalDate,omitempty"`
	From         string           `json:"from"`
	To           []string         `json:"to"`
	Cc           []string         `json:"cc"`
	ToAlias      []string         `json:"toAlias"`
	CcAlias      []string         `json:"ccAlias"`
	Subject      string           `json:"subject"`
	Date         string           `json:"date"`
	Text         string           `json:"text"`
	HTML         string           `json:"html"`
	Attachments  []MailAttachment `json:"attachments"`
	Inline       []AttachmentRef  `json:"inline,omitempty"`
}

// Aliases 返回收件人与抄送人别名的并集（保持顺序）
func (c *MailContent) Aliases() []string {
	out := make([]string, 0, len(c.ToAlias)+len(c.CcAlias))
	out = append(out, c.ToAlias...)
	out = append(out, c.CcAlias...)
	return out
}

// ChatMessage 为每个（发件人，收件人）对写入一条的聊天消息。
type ChatMessage struct {
	FromProfileID string      `json:"fromProfileId"`
	ToProfileID   string      `json:"toProfileId"`
	Data          MailContent `json:"data"`
}

// StoredMessage 聊天存储返回的消息
type StoredMessage struct {
	ID            string    `json:"id"`
	FromProfileID string    `json:"fromProfileId"`
	ToProfileID   string    `json:"toProfileId"`
	MessageID     string    `json:"messageId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// 扇出阶段
const (
	StageRelation = "relation"
	StageMessage  = "message"
)

// RecipientOutcome 单个收件人的处理结果
type RecipientOutcome struct {
	ProfileID       string         `json:"profileId"`
	Relation        *Relation      `json:"relation,omitempty"`
	RelationCreated bool           `json:"relationCreated"`
	Message         *StoredMessage `json:"message,omitempty"`
	FailedStage     string         `json:"failedStage,omitempty"`
	Err             error          `json:"-"`
}

// OK 该收件人的关系与消息是否都已完成
func (o RecipientOutcome) OK() bool {
	return o.Err == nil && o.Message != nil
}

// FanOutResult 一封邮件扇出到所有收件人的汇总结果。
type FanOutResult struct {
	MessageID       string             `json:"messageId"`
	SenderProfileID string             `json:"senderProfileId"`
	SenderCreated   bool               `json:"senderCreated"`
	Outcomes        []RecipientOutcome `json:"outcomes"`
}

// Delivered 成功写入的聊天消息数
func (r *FanOutResult) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed 返回失败的收件人结果
func (r *FanOutResult) Failed() []RecipientOutcome {
	var failed []RecipientOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err 汇总所有失败，全部成功时返回 nil
func (r *FanOutResult) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, fmt.Errorf("recipient %s (%s): %w", o.ProfileID, o.FailedStage, o.Err))
	}
	return errors.Join(errs...)
}
