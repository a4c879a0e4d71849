package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/parser"
	"mailinchat/backend/internal/queue"
)

// UnreadLabel 邮件服务商的未读标签
const UnreadLabel = "UNREAD"

// IngestService 抓取未读邮件并把每封邮件扇出为聊天消息。
type IngestService struct {
	provider     MailProvider
	publisher    TaskPublisher
	resolver     *IdentityResolver
	relations    *RelationManager
	materializer *MessageMaterializer
	inboxLabel   string
	metrics      *monitoring.Metrics
	log          *zap.Logger
}

// IngestDeps 流水线依赖
type IngestDeps struct {
	Provider     MailProvider
	Publisher    TaskPublisher
	Resolver     *IdentityResolver
	Relations    *RelationManager
	Materializer *MessageMaterializer
	InboxLabel   string
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// NewIngestService 创建抓取服务。
func NewIngestService(deps IngestDeps) *IngestService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestService{
		provider:     deps.Provider,
		publisher:    deps.Publisher,
		resolver:     deps.Resolver,
		relations:    deps.Relations,
		materializer: deps.Materializer,
		inboxLabel:   deps.InboxLabel,
		metrics:      deps.Metrics,
		log:          log,
	}
}

// RunCycle 执行一次抓取：列出未读邮件，立即整批标记已读，再为每封邮件发布解析任务。
//
// 先标记已读意味着解析失败的邮件不会被本组件重试。单个任务发布失败只记录日志。
// 返回成功发布的任务数。
func (s *IngestService) RunCycle(ctx context.Context) (int, error) {
	labels := []string{UnreadLabel}
	if s.inboxLabel != "" && s.inboxLabel != UnreadLabel {
		labels = append(labels, s.inboxLabel)
	}

	ids, err := s.provider.ListMessageIDs(ctx, labels)
	if err != nil {
		s.metrics.RecordCycle(false, 0)
		return 0, fmt.Errorf("list unread messages: %w", err)
	}
	if len(ids) == 0 {
		s.metrics.RecordCycle(true, 0)
		return 0, nil
	}

	if err := s.provider.MarkRead(ctx, ids); err != nil {
		s.metrics.RecordCycle(false, len(ids))
		return 0, fmt.Errorf("mark %d messages read: %w", len(ids), err)
	}

	published := 0
	for _, id := range ids {
		if err := s.publisher.Publish(ctx, queue.TopicParse, ParseTask{MessageID: id}); err != nil {
			s.log.Error("failed to publish parse task",
				zap.String("message_id", id),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	s.metrics.RecordCycle(true, len(ids))
	s.log.Info("fetch cycle finished",
		zap.Int("listed", len(ids)),
		zap.Int("published", published),
	)
	return published, nil
}

// ParseAndSave 处理单封邮件：拉取 → 解析 → 解析身份 → 关系 → 写消息。
//
// 没有收件人命中时返回 nil, nil。部分收件人失败时同时返回结果和汇总错误。
func (s *IngestService) ParseAndSave(ctx context.Context, messageID string) (result *domain.FanOutResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordParse(err == nil, time.Since(start))
	}()

	raw, err := s.provider.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	parsed := parser.Parse(raw)
	content, err := parser.BuildContent(parsed)
	if err != nil {
		return nil, err
	}

	identity, err := s.resolver.Resolve(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("resolve identities for %s: %w", messageID, err)
	}
	if identity == nil {
		s.metrics.RecordNoRecipients()
		return nil, nil
	}

	outcomes := s.relations.Ensure(ctx, identity.Sender.ID, identity.RecipientIDs())
	outcomes = s.materializer.Deliver(ctx, identity.Sender.ID, content, outcomes)

	result = &domain.FanOutResult{
		MessageID:       messageID,
		SenderProfileID: identity.Sender.ID,
		SenderCreated:   identity.SenderCreated,
		Outcomes:        outcomes,
	}

	s.log.Info("message delivered",
		zap.String("message_id", messageID),
		zap.String("sender_id", identity.Sender.ID),
		zap.Int("recipients", len(outcomes)),
		zap.Int("delivered", result.Delivered()),
	)

	if result.Delivered() > 0 {
		s.prefetchAttachments(ctx, content)
	}

	if ferr := result.Err(); ferr != nil {
		return result, fmt.Errorf("message %s partially delivered: %w", messageID, ferr)
	}
	return result, nil
}

// prefetchAttachments 为已投递邮件的附件发布缓存预热任务，失败只记录日志
func (s *IngestService) prefetchAttachments(ctx context.Context, content *domain.MailContent) {
	for _, a := range content.Attachments {
		if a.AttachmentID == "" {
			continue
		}
		err := s.publisher.Publish(ctx, queue.TopicAttachment, AttachmentTask{
			MessageID:    content.MessageID,
			AttachmentID: a.AttachmentID,
			MimeType:     a.MimeType,
			Filename:     a.Filename,
		})
		if err != nil {
			s.log.Warn("failed to publish attachment task",
				zap.String("message_id", content.MessageID),
				zap.String("attachment_id", a.AttachmentID),
				zap.Error(err),
			)
		}
	}
}

// ListLabels 列出邮箱标签
func (s *IngestService) ListLabels(ctx context.Context) ([]domain.Label, error) {
	return s.provider.ListLabels(ctx)
}

// RequestCycle 发布一个抓取任务
func (s *IngestService) RequestCycle(ctx context.Context) error {
	return s.publisher.Publish(ctx, queue.TopicFetch, nil)
}

// HandleFetch 处理抓取任务
func (s *IngestService) HandleFetch(ctx context.Context, _ *queue.Task) error {
	_, err := s.RunCycle(ctx)
	return err
}

// HandleParse 处理解析任务
func (s *IngestService) HandleParse(ctx context.Context, task *queue.Task) error {
	var payload ParseTask
	if err := task.Decode(&payload); err != nil {
		return fmt.Errorf("decode parse task: %w", err)
	}
	if payload.MessageID == "" {
		return fmt.Errorf("parse task %s has no message id", task.ID)
	}

	_, err := s.ParseAndSave(ctx, payload.MessageID)
	return err
}
