package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/storage"
)

// Options 数据库连接参数
type Options struct {
	Driver          string // "mysql" 或 "postgres"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db *gorm.DB
}

// NewStore 按驱动类型创建存储
func NewStore(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", opts.Driver)
	}
	return NewStoreWithDialector(dialector, opts)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	store := &Store{db: db}

	if opts.AutoMigrate {
		if err := store.Migrate(); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(Models()...)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// ========== Profile Directory ==========

// FindProfiles 返回任一邮箱（大小写不敏感）或任一别名命中的档案
func (s *Store) FindProfiles(ctx context.Context, query domain.ProfileQuery) ([]domain.Profile, error) {
	if query.IsEmpty() {
		return []domain.Profile{}, nil
	}

	db := s.db.WithContext(ctx)
	ids := make([]string, 0)

	if len(query.Emails) > 0 {
		normalized := make([]string, 0, len(query.Emails))
		for _, email := range query.Emails {
			normalized = append(normalized, strings.ToLower(email))
		}
		var matched []string
		if err := db.Model(&ProfileEmail{}).
			Where("normalized IN ?", normalized).
			Distinct().
			Pluck("profile_id", &matched).Error; err != nil {
			return nil, fmt.Errorf("query profiles by email: %w", err)
		}
		ids = append(ids, matched...)
	}

	if len(query.Aliases) > 0 {
		var matched []string
		if err := db.Model(&ProfileAlias{}).
			Where("alias IN ?", query.Aliases).
			Distinct().
			Pluck("profile_id", &matched).Error; err != nil {
			return nil, fmt.Errorf("query profiles by alias: %w", err)
		}
		ids = append(ids, matched...)
	}

	if len(ids) == 0 {
		return []domain.Profile{}, nil
	}

	var records []ProfileRecord
	if err := db.Preload("Emails").Preload("Aliases").
		Where("id IN ?", ids).
		Order("created_at").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	profiles := make([]domain.Profile, 0, len(records))
	for i := range records {
		profiles = append(profiles, records[i].toDomain())
	}
	return profiles, nil
}

// CreateProfile 创建档案及其邮箱和别名
func (s *Store) CreateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	if len(fields.Emails) == 0 && len(fields.MailChatAliases) == 0 {
		return nil, storage.ErrInvalidProfile
	}

	record := newProfileRecord(uuid.NewString(), fields)
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	profile := record.toDomain()
	return &profile, nil
}

// ========== Relation Store ==========

// ListRelations 返回 profileID 参与的全部关系
func (s *Store) ListRelations(ctx context.Context, profileID string) ([]domain.Relation, error) {
	var records []RelationRecord
	if err := s.db.WithContext(ctx).
		Where("left_profile_id = ? OR right_profile_id = ?", profileID, profileID).
		Order("created_at").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}

	relations := make([]domain.Relation, 0, len(records))
	for i := range records {
		relations = append(relations, *records[i].toDomain())
	}
	return relations, nil
}

// CreateRelation 幂等创建关系，冲突时读回已有记录
func (s *Store) CreateRelation(ctx context.Context, leftProfileID, rightProfileID string) (*domain.Relation, error) {
	if leftProfileID == "" || rightProfileID == "" || leftProfileID == rightProfileID {
		return nil, storage.ErrInvalidRelation
	}

	db := s.db.WithContext(ctx)
	record := RelationRecord{
		ID:             uuid.NewString(),
		LeftProfileID:  leftProfileID,
		RightProfileID: rightProfileID,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create relation: %w", err)
	}

	var stored RelationRecord
	err := db.Where("left_profile_id = ? AND right_profile_id = ?", leftProfileID, rightProfileID).
		First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("relation %s -> %s vanished after insert", leftProfileID, rightProfileID)
		}
		return nil, fmt.Errorf("load relation: %w", err)
	}
	return stored.toDomain(), nil
}

// ========== Chat Store ==========

// CreateMessage 保存一条聊天消息
func (s *Store) CreateMessage(ctx context.Context, message *domain.ChatMessage) (*domain.StoredMessage, error) {
	record := ChatMessageRecord{
		ID:            uuid.NewString(),
		FromProfileID: message.FromProfileID,
		ToProfileID:   message.ToProfileID,
		MessageID:     message.Data.MessageID,
		Data:          message.Data,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create chat message: %w", err)
	}
	return record.toDomain(), nil
}

