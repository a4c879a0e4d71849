package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServiceConfig 定义服务标识
type ServiceConfig struct {
	Name string // 服务名，用于日志和队列前缀，默认 "mail-in-chat"
}

// GmailConfig 定义邮件提供方（Gmail API）的访问配置
type GmailConfig struct {
	ClientEmail       string  // 服务账号邮箱
	PrivateKey        string  // 服务账号私钥（PEM，允许字面 \n）
	Subject           string  // 代理访问的邮箱账号，默认 "pool@sportmail.net"
	InboxLabel        string  // 只处理带该标签的邮件，默认 "INBOX"
	UserID            string  // Gmail API 的 userId，默认 "me"
	RequestsPerSecond float64 // 每秒请求上限，默认 10
	Burst             int     // 突发请求数，默认 20
}

// IngestConfig 定义抓取与解析流水线配置
type IngestConfig struct {
	Interval      time.Duration // 抓取周期，默认 30 秒
	Workers       int           // 解析任务并发数，默认 8
	QueueSize     int           // 协程池队列容量及内存队列初始容量，默认 256
	AttachmentTTL time.Duration // 附件缓存有效期，默认 7 天
}

// HTTPConfig 定义可选的 HTTP 接口配置
type HTTPConfig struct {
	Active bool   // 是否启用，默认关闭
	Host   string // 监听地址，默认 "0.0.0.0"
	Port   int    // 监听端口，默认 3010
	Prefix string // 路由前缀，默认 "/api/mail-in-chat"
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql"、"postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存与队列配置
type RedisConfig struct {
	Active   bool   // 是否启用 Redis，关闭时使用进程内缓存与队列
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:16379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Service  ServiceConfig
	Gmail    GmailConfig
	Ingest   IngestConfig
	HTTP     HTTPConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILINCHAT_
// 例如: MAILINCHAT_GMAIL_CLIENT_EMAIL, MAILINCHAT_REDIS_ADDRESS
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("mailinchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	interval, err := time.ParseDuration(v.GetString("ingest.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid ingest.interval: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("ingest.interval must be positive")
	}

	attachmentTTL, err := time.ParseDuration(v.GetString("ingest.attachment_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid ingest.attachment_ttl: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	workers := v.GetInt("ingest.workers")
	if workers <= 0 {
		workers = 8
	}

	queueSize := v.GetInt("ingest.queue_size")
	if queueSize <= 0 {
		queueSize = 256
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	dbType := strings.ToLower(v.GetString("database.type"))
	if dbType != "" && dbType != "mysql" && dbType != "postgres" {
		return nil, fmt.Errorf("unsupported database.type: %s (supported: mysql, postgres)", dbType)
	}

	clientEmail := v.GetString("gmail.client_email")
	privateKey := v.GetString("gmail.private_key")
	if clientEmail != "" && privateKey == "" {
		return nil, fmt.Errorf("gmail.private_key is required when gmail.client_email is set")
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name: v.GetString("service.name"),
		},
		Gmail: GmailConfig{
			ClientEmail:       clientEmail,
			PrivateKey:        privateKey,
			Subject:           v.GetString("gmail.subject"),
			InboxLabel:        v.GetString("gmail.inbox_label"),
			UserID:            v.GetString("gmail.user_id"),
			RequestsPerSecond: v.GetFloat64("gmail.requests_per_second"),
			Burst:             v.GetInt("gmail.burst"),
		},
		Ingest: IngestConfig{
			Interval:      interval,
			Workers:       workers,
			QueueSize:     queueSize,
			AttachmentTTL: attachmentTTL,
		},
		HTTP: HTTPConfig{
			Active: v.GetBool("http.active"),
			Host:   v.GetString("http.host"),
			Port:   v.GetInt("http.port"),
			Prefix: normalizePrefix(v.GetString("http.prefix")),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Active:   v.GetBool("redis.active"),
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "mail-in-chat")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("gmail.client_email", "")
	v.SetDefault("gmail.private_key", "")
	v.SetDefault("gmail.subject", "pool@sportmail.net")
	v.SetDefault("gmail.inbox_label", "INBOX")
	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.requests_per_second", 10)
	v.SetDefault("gmail.burst", 20)
	v.SetDefault("redis.active", true)
	v.SetDefault("redis.address", "localhost:16379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.type", "") // 默认为空，使用内存存储
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("ingest.interval", "30s")
	v.SetDefault("ingest.workers", 8)
	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.attachment_ttl", "168h")
	v.SetDefault("http.active", false)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3010)
	v.SetDefault("http.prefix", "/api/mail-in-chat")
	v.SetDefault("cors.allowed_origins", "*")
}

// normalizePrefix 保证前缀以 / 开头且不以 / 结尾
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 如果文件不存在则静默跳过，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
