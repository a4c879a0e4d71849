package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 能够探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker 健康检查器
//
// 存活检查只看进程本身；就绪检查覆盖存储、Redis 等外部依赖。
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
	ready  map[string]healthcheck.Check
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
		ready:  make(map[string]healthcheck.Check),
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	return hc
}

// AddReadinessCheck 注册一个就绪检查
func (hc *HealthChecker) AddReadinessCheck(name string, check healthcheck.Check) {
	wrapped := func() error {
		err := check()
		if err != nil {
			hc.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		}
		return err
	}
	hc.ready[name] = wrapped
	hc.health.AddReadinessCheck(name, wrapped)
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部就绪检查并返回结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	names := make([]string, 0, len(hc.ready))
	for name := range hc.ready {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names)+1)
	for _, name := range names {
		if err := hc.ready[name](); err != nil {
			results[name] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results[name] = "OK"
		}
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)
	return results
}

// StoreHealthCheck 存储健康检查
func StoreHealthCheck(health func() error) healthcheck.Check {
	return func() error {
		return health()
	}
}

// PingHealthCheck 带超时的连通性检查，用于 Redis 等依赖
func PingHealthCheck(p Pinger, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx)
	}
}
