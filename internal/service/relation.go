package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/storage"
)

// RelationManager 保证发件人与每个收件人之间存在关系。
//
// 本层不加锁；同一对档案的并发创建由关系存储的唯一约束去重。
type RelationManager struct {
	relations storage.RelationStore
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewRelationManager 创建关系管理器。
func NewRelationManager(relations storage.RelationStore, metrics *monitoring.Metrics, log *zap.Logger) *RelationManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelationManager{
		relations: relations,
		metrics:   metrics,
		log:       log,
	}
}

// Ensure 对每个收件人并发地复用或创建关系，返回与 recipientIDs 同序的结果
func (m *RelationManager) Ensure(ctx context.Context, senderID string, recipientIDs []string) []domain.RecipientOutcome {
	outcomes := make([]domain.RecipientOutcome, len(recipientIDs))

	var wg sync.WaitGroup
	for i, recipientID := range recipientIDs {
		wg.Add(1)
		go func(i int, recipientID string) {
			defer wg.Done()
			outcomes[i] = m.ensureOne(ctx, senderID, recipientID)
		}(i, recipientID)
	}
	wg.Wait()

	return outcomes
}

func (m *RelationManager) ensureOne(ctx context.Context, senderID, recipientID string) domain.RecipientOutcome {
	outcome := domain.RecipientOutcome{ProfileID: recipientID}

	existing, err := m.relations.ListRelations(ctx, senderID)
	if err != nil {
		return m.fail(outcome, senderID, err)
	}

	for i := range existing {
		if existing[i].Counterpart(senderID) == recipientID {
			relation := existing[i]
			outcome.Relation = &relation
			m.metrics.RecordRelation("reused")
			return outcome
		}
	}

	created, err := m.relations.CreateRelation(ctx, senderID, recipientID)
	if err != nil {
		return m.fail(outcome, senderID, err)
	}
	outcome.Relation = created
	outcome.RelationCreated = true
	m.metrics.RecordRelation("created")
	return outcome
}

func (m *RelationManager) fail(outcome domain.RecipientOutcome, senderID string, err error) domain.RecipientOutcome {
	m.metrics.RecordRelation("failed")
	m.log.Error("failed to ensure relation",
		zap.String("sender_id", senderID),
		zap.String("recipient_id", outcome.ProfileID),
		zap.Error(err),
	)
	outcome.FailedStage = domain.StageRelation
	outcome.Err = err
	return outcome
}
