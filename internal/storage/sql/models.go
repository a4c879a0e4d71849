package sql

import (
	"strings"
	"time"

	"mailinchat/backend/internal/domain"
)

// ProfileRecord 档案表
type ProfileRecord struct {
	ID        string         `gorm:"primaryKey;size:36"`
	Emails    []ProfileEmail `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	Aliases   []ProfileAlias `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// TableName 指定表名
func (ProfileRecord) TableName() string {
	return "profiles"
}

// ProfileEmail 档案邮箱，Normalized 为小写形式用于大小写不敏感匹配
type ProfileEmail struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ProfileID  string `gorm:"size:36;index"`
	Email      string `gorm:"size:320;not null"`
	Normalized string `gorm:"size:320;index;not null"`
}

// TableName 指定表名
func (ProfileEmail) TableName() string {
	return "profile_emails"
}

// ProfileAlias 档案别名
type ProfileAlias struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ProfileID string `gorm:"size:36;index"`
	Alias     string `gorm:"size:255;index;not null"`
}

// TableName 指定表名
func (ProfileAlias) TableName() string {
	return "profile_aliases"
}

// RelationRecord 关系表，同一有序对唯一
type RelationRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	LeftProfileID  string `gorm:"size:36;not null;uniqueIndex:idx_relation_pair;index:idx_relation_left"`
	RightProfileID string `gorm:"size:36;not null;uniqueIndex:idx_relation_pair;index:idx_relation_right"`
	CreatedAt      time.Time
}

// TableName 指定表名
func (RelationRecord) TableName() string {
	return "relations"
}

// ChatMessageRecord 聊天消息表
type ChatMessageRecord struct {
	ID            string             `gorm:"primaryKey;size:36"`
	FromProfileID string             `gorm:"size:36;index;not null"`
	ToProfileID   string             `gorm:"size:36;index;not null"`
	MessageID     string             `gorm:"size:64;index"`
	Data          domain.MailContent `gorm:"serializer:json;type:text"`
	CreatedAt     time.Time
}

// TableName 指定表名
func (ChatMessageRecord) TableName() string {
	return "chat_messages"
}

func newProfileRecord(id string, fields domain.ProfileFields) *ProfileRecord {
	record := &ProfileRecord{ID: id}
	for _, email := range fields.Emails {
		record.Emails = append(record.Emails, ProfileEmail{
			ProfileID:  id,
			Email:      email,
			Normalized: strings.ToLower(email),
		})
	}
	for _, alias := range fields.MailChatAliases {
		record.Aliases = append(record.Aliases, ProfileAlias{ProfileID: id, Alias: alias})
	}
	return record
}

func (r *ProfileRecord) toDomain() domain.Profile {
	profile := domain.Profile{
		ID:              r.ID,
		Emails:          make([]string, 0, len(r.Emails)),
		MailChatAliases: make([]string, 0, len(r.Aliases)),
		CreatedAt:       r.CreatedAt,
	}
	for _, e := range r.Emails {
		profile.Emails = append(profile.Emails, e.Email)
	}
	for _, a := range r.Aliases {
		profile.MailChatAliases = append(profile.MailChatAliases, a.Alias)
	}
	return profile
}

func (r *RelationRecord) toDomain() *domain.Relation {
	return &domain.Relation{
		ID:             r.ID,
		LeftProfileID:  r.LeftProfileID,
		RightProfileID: r.RightProfileID,
		CreatedAt:      r.CreatedAt,
	}
}

func (r *ChatMessageRecord) toDomain() *domain.StoredMessage {
	return &domain.StoredMessage{
		ID:            r.ID,
		FromProfileID: r.FromProfileID,
		ToProfileID:   r.ToProfileID,
		MessageID:     r.MessageID,
		CreatedAt:     r.CreatedAt,
	}
}

// Models 返回需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&ProfileRecord{},
		&ProfileEmail{},
		&ProfileAlias{},
		&RelationRecord{},
		&ChatMessageRecord{},
	}
}
