package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailinchat/backend/internal/domain"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/storage"
)

// Identity 一封邮件解析出的发件人与收件人档案
type Identity struct {
	Sender        domain.Profile
	SenderCreated bool
	// Recipients 已去重并排除发件人自身
	Recipients []domain.Profile
}

// RecipientIDs 返回收件人档案 id
func (i *Identity) RecipientIDs() []string {
	ids := make([]string, 0, len(i.Recipients))
	for _, p := range i.Recipients {
		ids = append(ids, p.ID)
	}
	return ids
}

// IdentityResolver 把邮件地址解析为身份目录中的档案。
type IdentityResolver struct {
	directory storage.ProfileDirectory
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewIdentityResolver 创建身份解析器。
func NewIdentityResolver(directory storage.ProfileDirectory, metrics *monitoring.Metrics, log *zap.Logger) *IdentityResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityResolver{
		directory: directory,
		metrics:   metrics,
		log:       log,
	}
}

// Resolve 并发查找发件人与收件人档案。
//
// 没有任何收件人命中时返回 nil, nil，调用方应当跳过这封邮件。
// 发件人不存在时以 From 地址创建新档案。
func (r *IdentityResolver) Resolve(ctx context.Context, content *domain.MailContent) (*Identity, error) {
	aliases := content.Aliases()

	var (
		senders    []domain.Profile
		recipients []domain.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := r.directory.FindProfiles(gctx, domain.ProfileQuery{Emails: []string{content.From}})
		if err != nil {
			return fmt.Errorf("find sender profile: %w", err)
		}
		senders = found
		return nil
	})
	g.Go(func() error {
		if len(aliases) == 0 {
			return nil
		}
		found, err := r.directory.FindProfiles(gctx, domain.ProfileQuery{Aliases: aliases})
		if err != nil {
			return fmt.Errorf("find recipient profiles: %w", err)
		}
		recipients = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(recipients) == 0 {
		r.log.Info("no recipient profile matched, skipping message",
			zap.String("message_id", content.MessageID),
			zap.Strings("aliases", aliases),
		)
		return nil, nil
	}

	identity := &Identity{}
	if len(senders) > 0 {
		identity.Sender = senders[0]
	} else {
		created, err := r.directory.CreateProfile(ctx, domain.ProfileFields{Emails: []string{content.From}})
		if err != nil {
			return nil, fmt.Errorf("create sender profile: %w", err)
		}
		identity.Sender = *created
		identity.SenderCreated = true
		r.metrics.RecordProfileCreated()
		r.log.Info("created sender profile",
			zap.String("message_id", content.MessageID),
			zap.String("profile_id", created.ID),
		)
	}

	seen := make(map[string]bool, len(recipients))
	identity.Recipients = make([]domain.Profile, 0, len(recipients))
	for _, p := range recipients {
		if p.ID == identity.Sender.ID || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		identity.Recipients = append(identity.Recipients, p)
	}

	return identity, nil
}
