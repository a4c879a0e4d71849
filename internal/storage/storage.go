package storage

import (
	"context"
	"errors"
	"time"

	"mailinchat/backend/internal/domain"
)

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")
	// ErrInvalidProfile 档案字段无效
	ErrInvalidProfile = errors.New("profile must have at least one email or alias")
	// ErrInvalidRelation 关系两端无效
	ErrInvalidRelation = errors.New("relation requires two distinct profiles")
)

// ProfileDirectory 定义身份目录操作。
type ProfileDirectory interface {
	FindProfiles(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error)
	CreateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error)
}

// RelationStore 定义关系存取操作。
type RelationStore interface {
	// ListRelations 返回 profileID 参与的所有关系
	ListRelations(ctx context.Context, profileID string) ([]domain.Relation, error)
	// CreateRelation 幂等创建关系，同一有序对已存在时返回已有记录
	CreateRelation(ctx context.Context, leftProfileID, rightProfileID string) (*domain.Relation, error)
}

// ChatStore 定义聊天消息写入操作。
type ChatStore interface {
	CreateMessage(ctx context.Context, message *domain.ChatMessage) (*domain.StoredMessage, error)
}

// Cache 定义键值缓存操作，未命中时返回 ErrCacheMiss。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
}

// Store 聚合目录、关系与聊天存储。
type Store interface {
	ProfileDirectory
	RelationStore
	ChatStore

	Close() error
	Health() error
}
