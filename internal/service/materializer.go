package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/storage"
)

// MessageMaterializer 为每个（发件人，收件人）对写入一条聊天消息。
type MessageMaterializer struct {
	chats   storage.ChatStore
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewMessageMaterializer 创建消息写入器。
func NewMessageMaterializer(chats storage.ChatStore, metrics *monitoring.Metrics, log *zap.Logger) *MessageMaterializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageMaterializer{
		chats:   chats,
		metrics: metrics,
		log:     log,
	}
}

// Deliver 并发写入消息，单条失败不影响其他收件人。
//
// 关系阶段已失败的收件人原样保留，不再写消息。
func (m *MessageMaterializer) Deliver(ctx context.Context, senderID string, content *domain.MailContent, outcomes []domain.RecipientOutcome) []domain.RecipientOutcome {
	result := make([]domain.RecipientOutcome, len(outcomes))
	copy(result, outcomes)

	var wg sync.WaitGroup
	for i := range result {
		if result[i].Err != nil {
			continue
		}
		wg.Add(1)
		go func(o *domain.RecipientOutcome) {
			defer wg.Done()

			stored, err := m.chats.CreateMessage(ctx, &domain.ChatMessage{
				FromProfileID: senderID,
				ToProfileID:   o.ProfileID,
				Data:          *content,
			})
			if err != nil {
				m.metrics.RecordChatMessage(false)
				m.log.Error("failed to create chat message",
					zap.String("message_id", content.MessageID),
					zap.String("recipient_id", o.ProfileID),
					zap.Error(err),
				)
				o.FailedStage = domain.StageMessage
				o.Err = err
				return
			}
			m.metrics.RecordChatMessage(true)
			o.Message = stored
		}(&result[i])
	}
	wg.Wait()

	return result
}
