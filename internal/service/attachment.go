package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/parser"
	"mailinchat/backend/internal/queue"
	"mailinchat/backend/internal/storage"
)

// DefaultAttachmentTTL 附件缓存有效期
const DefaultAttachmentTTL = 7 * 24 * time.Hour

// ErrInvalidAttachment 缺少 messageId 或 attachmentId
var ErrInvalidAttachment = errors.New("attachment requires message id and attachment id")

// AttachmentService 附件缓存网关：命中直接返回，未命中时从邮件服务商拉取并写回缓存。
//
// 并发未命中不做合并，两次拉取都会写入，内容相同，后写者生效。
type AttachmentService struct {
	provider MailProvider
	cache    storage.Cache
	ttl      time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewAttachmentService 创建附件服务，ttl<=0 时使用 7 天
func NewAttachmentService(provider MailProvider, cache storage.Cache, ttl time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *AttachmentService {
	if ttl <= 0 {
		ttl = DefaultAttachmentTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AttachmentService{
		provider: provider,
		cache:    cache,
		ttl:      ttl,
		metrics:  metrics,
		log:      log,
	}
}

// Get 返回附件内容（标准 base64）及其声明的类型与文件名
func (s *AttachmentService) Get(ctx context.Context, messageID string, ref domain.AttachmentRef) (*domain.AttachmentCacheEntry, error) {
	if messageID == "" || ref.AttachmentID == "" {
		return nil, ErrInvalidAttachment
	}

	key := domain.AttachmentCacheKey(ref.AttachmentID)

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var entry domain.AttachmentCacheEntry
		if err := json.Unmarshal(cached, &entry); err != nil {
			return nil, fmt.Errorf("decode cached attachment %s: %w", ref.AttachmentID, err)
		}
		s.metrics.RecordAttachmentCache(true)
		return &entry, nil
	case !errors.Is(err, storage.ErrCacheMiss):
		return nil, fmt.Errorf("read attachment cache: %w", err)
	}

	s.metrics.RecordAttachmentCache(false)

	data, err := s.provider.GetAttachment(ctx, messageID, ref.AttachmentID)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment %s: %w", ref.AttachmentID, err)
	}

	entry := &domain.AttachmentCacheEntry{
		MimeType: ref.MimeType,
		Filename: ref.Filename,
		Base64:   parser.ToStdBase64(data),
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode attachment %s: %w", ref.AttachmentID, err)
	}
	if err := s.cache.Set(ctx, key, encoded, s.ttl); err != nil {
		return nil, fmt.Errorf("write attachment cache: %w", err)
	}

	s.log.Debug("attachment cached",
		zap.String("message_id", messageID),
		zap.String("attachment_id", ref.AttachmentID),
	)
	return entry, nil
}

// HandleTask 处理附件预取任务
func (s *AttachmentService) HandleTask(ctx context.Context, task *queue.Task) error {
	var payload AttachmentTask
	if err := task.Decode(&payload); err != nil {
		return fmt.Errorf("decode attachment task: %w", err)
	}

	_, err := s.Get(ctx, payload.MessageID, domain.AttachmentRef{
		AttachmentID: payload.AttachmentID,
		MimeType:     payload.MimeType,
		Filename:     payload.Filename,
	})
	return err
}
