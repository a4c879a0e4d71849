package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailinchat/backend/internal/cache"
	"mailinchat/backend/internal/config"
	"mailinchat/backend/internal/gmail"
	"mailinchat/backend/internal/health"
	"mailinchat/backend/internal/logger"
	"mailinchat/backend/internal/monitoring"
	"mailinchat/backend/internal/pool"
	"mailinchat/backend/internal/queue"
	"mailinchat/backend/internal/scheduler"
	"mailinchat/backend/internal/service"
	"mailinchat/backend/internal/storage"
	"mailinchat/backend/internal/storage/memory"
	redisstore "mailinchat/backend/internal/storage/redis"
	sqlstore "mailinchat/backend/internal/storage/sql"
	httptransport "mailinchat/backend/internal/transport/http"
)

// localCacheSize 未启用 Redis 时进程内附件缓存的容量
const localCacheSize = 10000

// main 启动邮件抓取、解析投递与可选的 HTTP 接口。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Service.Name, cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mail-in-chat server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("inbox_label", cfg.Gmail.InboxLabel),
		zap.Duration("interval", cfg.Ingest.Interval),
	)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化存储层
	store, err := initStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	// 初始化监控系统
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	healthChecker := health.NewHealthChecker(log)
	healthChecker.AddReadinessCheck("store", health.StoreHealthCheck(store.Health))

	// 缓存与队列：启用 Redis 时共享，否则使用进程内实现
	var (
		attachmentCache storage.Cache
		broker          queue.Broker
	)
	if cfg.Redis.Active {
		redisClient, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		redisBroker := queue.NewRedisBroker(redisClient.Client(), log)
		recoverTasks(ctx, redisBroker, log)

		attachmentCache = redisstore.NewCache(redisClient)
		broker = redisBroker
		healthChecker.AddReadinessCheck("redis", health.PingHealthCheck(redisClient, 2*time.Second))
	} else {
		localCache := cache.NewLocalCache(localCacheSize, cfg.Ingest.AttachmentTTL)
		defer localCache.Close()

		memoryBroker := queue.NewMemoryBroker(cfg.Ingest.QueueSize)
		defer func() { _ = memoryBroker.Close() }()

		attachmentCache = localCache
		broker = memoryBroker
		log.Info("redis disabled, using in-process cache and queue")
	}

	// 邮件服务商
	provider, err := gmail.NewClient(ctx, cfg.Gmail, log)
	if err != nil {
		log.Fatal("failed to initialize gmail client", zap.Error(err))
	}

	// 协程池使用独立的上下文，收到退出信号后仍能执行完已排队的任务
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workers := pool.NewWorkerPool(cfg.Ingest.Workers, cfg.Ingest.QueueSize, log)
	workers.Start(workerCtx)

	tasks := queue.New(broker, workers, log)

	// 初始化服务层
	ingestService := service.NewIngestService(service.IngestDeps{
		Provider:     provider,
		Publisher:    tasks,
		Resolver:     service.NewIdentityResolver(store, metrics, log),
		Relations:    service.NewRelationManager(store, metrics, log),
		Materializer: service.NewMessageMaterializer(store, metrics, log),
		InboxLabel:   cfg.Gmail.InboxLabel,
		Metrics:      metrics,
		Logger:       log,
	})
	attachmentService := service.NewAttachmentService(provider, attachmentCache, cfg.Ingest.AttachmentTTL, metrics, log)

	group, groupCtx := errgroup.WithContext(ctx)

	// 队列消费者
	group.Go(func() error { return tasks.Consume(groupCtx, queue.TopicFetch, ingestService.HandleFetch) })
	group.Go(func() error { return tasks.Consume(groupCtx, queue.TopicParse, ingestService.HandleParse) })
	group.Go(func() error { return tasks.Consume(groupCtx, queue.TopicAttachment, attachmentService.HandleTask) })

	// 定时抓取
	fetchScheduler := scheduler.New(cfg.Ingest.Interval, ingestService.RequestCycle, log)
	group.Go(func() error { return fetchScheduler.Run(groupCtx) })

	// 可选的 HTTP 接口
	if cfg.HTTP.Active {
		httpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		router := httptransport.NewRouter(httptransport.RouterDependencies{
			HTTP:        cfg.HTTP,
			CORS:        cfg.CORS,
			Ingest:      ingestService,
			Attachments: attachmentService,
			Health:      healthChecker,
			Metrics:     metrics,
			Logger:      log,
		})

		httpServer := &http.Server{
			Addr:              httpAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		group.Go(func() error {
			log.Info("starting HTTP server",
				zap.String("address", httpAddr),
				zap.String("prefix", cfg.HTTP.Prefix),
			)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server error", zap.Error(err))
				return err
			}
			return nil
		})

		// 优雅关闭 goroutine
		group.Go(func() error {
			<-groupCtx.Done()
			log.Info("shutdown signal received, gracefully shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
	}

	// 消费者已退出，等待已排队的任务完成
	workers.Stop()
	log.Info("server exited cleanly")
}

// initStorage 根据配置选择数据库或内存存储
func initStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	store, err := sqlstore.NewStore(sqlstore.Options{
		Driver:          cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     true,
	})
	if err != nil {
		return nil, err
	}

	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}

// recoverTasks 把上次退出时未确认的任务放回待处理队列
func recoverTasks(ctx context.Context, broker *queue.RedisBroker, log *zap.Logger) {
	for _, topic := range []string{queue.TopicFetch, queue.TopicParse, queue.TopicAttachment} {
		if _, err := broker.Recover(ctx, topic); err != nil {
			log.Warn("failed to recover in-flight tasks", zap.String("topic", topic), zap.Error(err))
		}
	}
}
