package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailinchat/backend/internal/config"
	"mailinchat/backend/internal/domain"
)

// batchModifyLimit Gmail batchModify 单次最多 1000 个 id
const batchModifyLimit = 1000

// listPageSize 列表接口单页大小
const listPageSize = 500

// ErrMissingCredentials 未配置服务账号
var ErrMissingCredentials = errors.New("gmail service account credentials are not configured")

// Client 以服务账号代理访问一个邮箱
//
// 所有调用先经过限流器，再经过熔断器。客户端端的 4xx（429 除外）不计入熔断。
type Client struct {
	svc     *gmailapi.Service
	userID  string
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient 使用服务账号凭证创建客户端，并立即换取一次令牌以尽早暴露凭证错误
func NewClient(ctx context.Context, cfg config.GmailConfig, log *zap.Logger) (*Client, error) {
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return nil, ErrMissingCredentials
	}

	jwtConfig := &jwt.Config{
		Email: cfg.ClientEmail,
		// 私钥在环境变量中通常以字面 \n 表示换行
		PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
		Scopes: []string{
			gmailapi.GmailReadonlyScope,
			gmailapi.GmailModifyScope,
		},
		TokenURL: google.JWTTokenURL,
		Subject:  cfg.Subject,
	}

	tokenSource := jwtConfig.TokenSource(ctx)
	if _, err := tokenSource.Token(); err != nil {
		return nil, fmt.Errorf("failed to obtain gmail access token: %w", err)
	}

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return NewClientWithService(svc, cfg, log), nil
}

// NewClientWithService 使用已构建的 Gmail 服务创建客户端
func NewClientWithService(svc *gmailapi.Service, cfg config.GmailConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	userID := cfg.UserID
	if userID == "" {
		userID = "me"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		svc:     svc,
		userID:  userID,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return c
}

// countsAsSuccess 客户端错误说明服务本身可用，不计入熔断
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests
	}
	return false
}

// IsNotFound 判断错误是否为 404
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// BreakerState 返回熔断器当前状态
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func (c *Client) call(ctx context.Context, operation string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gmail %s: %w", operation, err)
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		c.log.Debug("gmail call failed",
			zap.String("operation", operation),
			zap.String("breaker_state", c.cb.State().String()),
			zap.Error(err),
		)
		return fmt.Errorf("gmail %s: %w", operation, err)
	}
	return nil
}

// ListMessageIDs 列出同时带有全部 labelIDs 的邮件 id
func (c *Client) ListMessageIDs(ctx context.Context, labelIDs []string) ([]string, error) {
	ids := make([]string, 0)
	pageToken := ""

	for {
		var resp *gmailapi.ListMessagesResponse
		err := c.call(ctx, "list", func() error {
			req := c.svc.Users.Messages.List(c.userID).
				LabelIds(labelIDs...).
				MaxResults(listPageSize).
				Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			if m != nil && m.Id != "" {
				ids = append(ids, m.Id)
			}
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetMessage 获取完整邮件（format=full）
func (c *Client) GetMessage(ctx context.Context, messageID string) (*domain.RawMessage, error) {
	var msg *gmailapi.Message
	err := c.call(ctx, "get", func() error {
		var apiErr error
		msg, apiErr = c.svc.Users.Messages.Get(c.userID, messageID).
			Format("full").
			Context(ctx).
			Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return toRawMessage(msg), nil
}

// MarkRead 批量移除 UNREAD 标签
func (c *Client) MarkRead(ctx context.Context, messageIDs []string) error {
	for start := 0; start < len(messageIDs); start += batchModifyLimit {
		end := start + batchModifyLimit
		if end > len(messageIDs) {
			end = len(messageIDs)
		}
		chunk := messageIDs[start:end]

		err := c.call(ctx, "batchModify", func() error {
			return c.svc.Users.Messages.BatchModify(c.userID, &gmailapi.BatchModifyMessagesRequest{
				Ids:            chunk,
				RemoveLabelIds: []string{"UNREAD"},
			}).Context(ctx).Do()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAttachment 获取附件内容，返回服务商原样的 base64url 字符串
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	var body *gmailapi.MessagePartBody
	err := c.call(ctx, "getAttachment", func() error {
		var apiErr error
		body, apiErr = c.svc.Users.Messages.Attachments.Get(c.userID, messageID, attachmentID).
			Context(ctx).
			Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}
	return body.Data, nil
}

// ListLabels 列出邮箱的全部标签
func (c *Client) ListLabels(ctx context.Context) ([]domain.Label, error) {
	var resp *gmailapi.ListLabelsResponse
	err := c.call(ctx, "listLabels", func() error {
		var apiErr error
		resp, apiErr = c.svc.Users.Labels.List(c.userID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	labels := make([]domain.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		if l == nil {
			continue
		}
		labels = append(labels, domain.Label{
			ID:             l.Id,
			Name:           l.Name,
			Type:           l.Type,
			MessagesTotal:  l.MessagesTotal,
			MessagesUnread: l.MessagesUnread,
		})
	}
	return labels, nil
}
