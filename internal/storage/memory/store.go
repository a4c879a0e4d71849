package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/storage"
)

// relationKey 有序档案对
type relationKey struct {
	left  string
	right string
}

// Store 使用内存保存档案、关系与聊天消息，主要用于开发验证和测试。
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]*domain.Profile // profileID -> profile
	byEmail   map[string]string          // lower(email) -> profileID
	byAlias   map[string][]string        // alias -> profileIDs
	relations map[relationKey]*domain.Relation
	messages  []*domain.StoredMessage
	payloads  map[string]domain.MailContent // storedMessageID -> payload
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]*domain.Profile),
		byEmail:   make(map[string]string),
		byAlias:   make(map[string][]string),
		relations: make(map[relationKey]*domain.Relation),
		messages:  make([]*domain.StoredMessage, 0),
		payloads:  make(map[string]domain.MailContent),
	}
}

// ========== 身份目录 ==========

// FindProfiles 返回任一邮箱（大小写不敏感）或任一别名命中的档案。
func (s *Store) FindProfiles(_ context.Context, query domain.ProfileQuery) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	result := make([]domain.Profile, 0)
	add := func(id string) {
		if seen[id] {
			return
		}
		if profile, ok := s.profiles[id]; ok {
			seen[id] = true
			result = append(result, cloneProfile(profile))
		}
	}

	for _, email := range query.Emails {
		if id, ok := s.byEmail[strings.ToLower(email)]; ok {
			add(id)
		}
	}
	for _, alias := range query.Aliases {
		for _, id := range s.byAlias[alias] {
			add(id)
		}
	}
	return result, nil
}

// CreateProfile 创建档案。
func (s *Store) CreateProfile(_ context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	if len(fields.Emails) == 0 && len(fields.MailChatAliases) == 0 {
		return nil, storage.ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile := &domain.Profile{
		ID:              uuid.NewString(),
		Emails:          append([]string(nil), fields.Emails...),
		MailChatAliases: append([]string(nil), fields.MailChatAliases...),
		CreatedAt:       time.Now().UTC(),
	}
	s.profiles[profile.ID] = profile
	for _, email := range profile.Emails {
		s.byEmail[strings.ToLower(email)] = profile.ID
	}
	for _, alias := range profile.MailChatAliases {
		s.byAlias[alias] = append(s.byAlias[alias], profile.ID)
	}

	created := cloneProfile(profile)
	return &created, nil
}

// ========== 关系 ==========

// ListRelations 返回 profileID 参与的全部关系。
func (s *Store) ListRelations(_ context.Context, profileID string) ([]domain.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Relation, 0)
	for _, relation := range s.relations {
		if relation.LeftProfileID == profileID || relation.RightProfileID == profileID {
			result = append(result, *relation)
		}
	}
	return result, nil
}

// CreateRelation 幂等创建关系，同一有序对只保存一条。
func (s *Store) CreateRelation(_ context.Context, leftProfileID, rightProfileID string) (*domain.Relation, error) {
	if leftProfileID == "" || rightProfileID == "" || leftProfileID == rightProfileID {
		return nil, storage.ErrInvalidRelation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := relationKey{left: leftProfileID, right: rightProfileID}
	if existing, ok := s.relations[key]; ok {
		relation := *existing
		return &relation, nil
	}

	relation := &domain.Relation{
		ID:             uuid.NewString(),
		LeftProfileID:  leftProfileID,
		RightProfileID: rightProfileID,
		CreatedAt:      time.Now().UTC(),
	}
	s.relations[key] = relation

	created := *relation
	return &created, nil
}

// ========== 聊天消息 ==========

// CreateMessage 保存一条聊天消息。
func (s *Store) CreateMessage(_ context.Context, message *domain.ChatMessage) (*domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := &domain.StoredMessage{
		ID:            uuid.NewString(),
		FromProfileID: message.FromProfileID,
		ToProfileID:   message.ToProfileID,
		MessageID:     message.Data.MessageID,
		CreatedAt:     time.Now().UTC(),
	}
	s.messages = append(s.messages, stored)
	s.payloads[stored.ID] = message.Data

	created := *stored
	return &created, nil
}

// ListMessages 返回全部已保存消息的快照
func (s *Store) ListMessages() []domain.StoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StoredMessage, 0, len(s.messages))
	for _, m := range s.messages {
		result = append(result, *m)
	}
	return result
}

// MessagePayload 返回已保存消息携带的邮件内容
func (s *Store) MessagePayload(storedMessageID string) (domain.MailContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.payloads[storedMessageID]
	return payload, ok
}

// Close 内存存储无需关闭
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用
func (s *Store) Health() error {
	return nil
}

func cloneProfile(p *domain.Profile) domain.Profile {
	return domain.Profile{
		ID:              p.ID,
		Emails:          append([]string(nil), p.Emails...),
		MailChatAliases: append([]string(nil), p.MailChatAliases...),
		CreatedAt:       p.CreatedAt,
	}
}
