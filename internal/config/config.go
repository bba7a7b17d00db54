package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hongjun500/lanchat/internal/protocol"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	TCPAddr      string
	HTTPAddr     string // 空表示不启动运维 HTTP
	OutBuffer    int
	IdleTimeout  time.Duration
	FrameTimeout time.Duration
	WriteTimeout time.Duration
	MaxFileSize  int
	FilesDir     string

	Store     string
	DBDSN     string
	UserCache int
	// DepGroup / DepInterval 数据库依赖监控，间隔为 0 时不启用
	DepGroup    string
	DepInterval time.Duration

	RedisAddr   string
	RedisStream string

	LogLevel string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvKeep 与 getEnv 不同，显式设置为空也生效
func getEnvKeep(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// getEnvInt 非法或越界时回退默认值
func getEnvInt(key string, def, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
	if err != nil || n < min {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, def.String()))
	if err != nil || d < 0 {
		return def
	}
	return d
}

func Load() (*Config, error) {
	cfg := &Config{
		TCPAddr:      getEnv("CHAT_TCP_ADDR", "0.0.0.0:12345"),
		HTTPAddr:     getEnvKeep("CHAT_HTTP_ADDR", ":9090"),
		OutBuffer:    getEnvInt("CHAT_OUTBUF", 256, 1),
		IdleTimeout:  getEnvDuration("CHAT_IDLE_TIMEOUT", 10*time.Second),
		FrameTimeout: getEnvDuration("CHAT_FRAME_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvDuration("CHAT_WRITE_TIMEOUT", 10*time.Second),
		MaxFileSize:  min(getEnvInt("CHAT_MAX_FILE_SIZE", protocol.MaxFileSize, 1), protocol.MaxFileSize),
		FilesDir:     getEnv("CHAT_FILES_DIR", "files"),
		Store:        getEnv("CHAT_STORE", StoreMemory),
		DBDSN:        os.Getenv("CHAT_DB_DSN"),
		UserCache:    getEnvInt("CHAT_USER_CACHE", 1024, 0),
		DepGroup:     getEnv("CHAT_DEP_GROUP", "lanchat"),
		DepInterval:  getEnvDuration("CHAT_DEP_INTERVAL", 15*time.Second),
		RedisAddr:    os.Getenv("CHAT_REDIS_ADDR"),
		RedisStream:  getEnv("CHAT_REDIS_STREAM", "chat:events"),
		LogLevel:     getEnv("CHAT_LOG_LEVEL", "info"),
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("CHAT_DB_DSN is required when CHAT_STORE=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("CHAT_STORE: unknown store %q", cfg.Store)
	}
	return cfg, nil
}
