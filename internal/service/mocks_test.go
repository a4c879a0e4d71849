package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/storage/memory"
)

// MockProvider 模拟邮件服务商
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ListMessageIDs(ctx context.Context, labelIDs []string) ([]string, error) {
	args := m.Called(ctx, labelIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockProvider) GetMessage(ctx context.Context, messageID string) (*domain.RawMessage, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RawMessage), args.Error(1)
}

func (m *MockProvider) MarkRead(ctx context.Context, messageIDs []string) error {
	args := m.Called(ctx, messageIDs)
	return args.Error(0)
}

func (m *MockProvider) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	args := m.Called(ctx, messageID, attachmentID)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) ListLabels(ctx context.Context) ([]domain.Label, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Label), args.Error(1)
}

// MockPublisher 模拟任务发布
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// failingChatStore 对指定收件人写消息失败
type failingChatStore struct {
	*memory.Store
	failFor map[string]bool
}

func (s *failingChatStore) CreateMessage(ctx context.Context, message *domain.ChatMessage) (*domain.StoredMessage, error) {
	if s.failFor[message.ToProfileID] {
		return nil, errors.New("chat store unavailable")
	}
	return s.Store.CreateMessage(ctx, message)
}

// failingRelationStore 对指定收件人创建关系失败
type failingRelationStore struct {
	*memory.Store
	failFor map[string]bool
}

func (s *failingRelationStore) CreateRelation(ctx context.Context, left, right string) (*domain.Relation, error) {
	if s.failFor[right] {
		return nil, errors.New("relation store unavailable")
	}
	return s.Store.CreateRelation(ctx, left, right)
}

// countingDirectory 记录 CreateProfile 调用次数
type countingDirectory struct {
	*memory.Store
	mu      sync.Mutex
	creates int
	queries []domain.ProfileQuery
}

func (d *countingDirectory) FindProfiles(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error) {
	d.mu.Lock()
	d.queries = append(d.queries, query)
	d.mu.Unlock()
	return d.Store.FindProfiles(ctx, query)
}

func (d *countingDirectory) CreateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	d.mu.Lock()
	d.creates++
	d.mu.Unlock()
	return d.Store.CreateProfile(ctx, fields)
}

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func rawMessage(id, from, to, cc string) *domain.RawMessage {
	headers := []domain.Header{{Name: "From", Value: from}, {Name: "Subject", Value: "Hello"}}
	if to != "" {
		headers = append(headers, domain.Header{Name: "To", Value: to})
	}
	if cc != "" {
		headers = append(headers, domain.Header{Name: "Cc", Value: cc})
	}

	return &domain.RawMessage{
		ID:       id,
		ThreadID: "thread-" + id,
		Snippet:  "hi there",
		Payload: &domain.RawPart{
			MimeType: "multipart/mixed",
			Headers:  headers,
			Parts: []*domain.RawPart{
				{MimeType: "text/plain", Body: &domain.PartBody{Data: b64url("hi there"), Size: 8}},
				{
					MimeType: "application/pdf",
					Filename: "invoice.pdf",
					Body:     &domain.PartBody{Size: 1024, AttachmentID: "att-" + id},
				},
			},
		},
	}
}
