package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 流水线监控指标
//
// 所有 Record 方法允许 nil 接收者，便于在测试中省略指标。
type Metrics struct {
	gatherer prometheus.Gatherer

	// 抓取周期
	CyclesTotal    *prometheus.CounterVec
	MessagesListed prometheus.Counter

	// 解析任务
	ParseTasksTotal *prometheus.CounterVec
	ParseDuration   prometheus.Histogram
	SoftNoOps       prometheus.Counter

	// 身份与关系
	ProfilesCreated prometheus.Counter
	RelationsTotal  *prometheus.CounterVec

	// 聊天消息
	ChatMessagesTotal *prometheus.CounterVec

	// 附件缓存
	AttachmentCacheTotal *prometheus.CounterVec

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics 在 reg 上注册指标；reg 为 nil 时使用默认注册表
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_fetch_cycles_total",
				Help: "Total number of fetch cycles by result",
			},
			[]string{"result"},
		),

		MessagesListed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailinchat_messages_listed_total",
				Help: "Total number of unread messages returned by the provider",
			},
		),

		ParseTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_parse_tasks_total",
				Help: "Total number of parse tasks by result",
			},
			[]string{"result"},
		),

		ParseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailinchat_parse_duration_seconds",
				Help:    "Parse task duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		SoftNoOps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailinchat_parse_no_recipients_total",
				Help: "Total number of messages skipped because no recipient resolved",
			},
		),

		ProfilesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailinchat_profiles_created_total",
				Help: "Total number of sender profiles created",
			},
		),

		RelationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_relations_total",
				Help: "Total number of relations resolved by outcome",
			},
			[]string{"outcome"},
		),

		ChatMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_chat_messages_total",
				Help: "Total number of chat messages by result",
			},
			[]string{"result"},
		),

		AttachmentCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_attachment_cache_total",
				Help: "Attachment cache lookups by result",
			},
			[]string{"result"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailinchat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailinchat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// RecordCycle 记录一次抓取周期
func (m *Metrics) RecordCycle(ok bool, listed int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(resultLabel(ok)).Inc()
	m.MessagesListed.Add(float64(listed))
}

// RecordParse 记录一次解析任务
func (m *Metrics) RecordParse(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ParseTasksTotal.WithLabelValues(resultLabel(ok)).Inc()
	m.ParseDuration.Observe(duration.Seconds())
}

// RecordNoRecipients 记录没有可投递收件人的邮件
func (m *Metrics) RecordNoRecipients() {
	if m == nil {
		return
	}
	m.SoftNoOps.Inc()
}

// RecordProfileCreated 记录新建发件人档案
func (m *Metrics) RecordProfileCreated() {
	if m == nil {
		return
	}
	m.ProfilesCreated.Inc()
}

// RecordRelation 记录关系结果：created、reused 或 failed
func (m *Metrics) RecordRelation(outcome string) {
	if m == nil {
		return
	}
	m.RelationsTotal.WithLabelValues(outcome).Inc()
}

// RecordChatMessage 记录聊天消息写入结果
func (m *Metrics) RecordChatMessage(ok bool) {
	if m == nil {
		return
	}
	m.ChatMessagesTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordAttachmentCache 记录附件缓存命中情况
func (m *Metrics) RecordAttachmentCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.AttachmentCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.AttachmentCacheTotal.WithLabelValues("miss").Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
