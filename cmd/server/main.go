package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/bus/redisstream"
	"github.com/hongjun500/lanchat/internal/chat"
	"github.com/hongjun500/lanchat/internal/config"
	"github.com/hongjun500/lanchat/internal/filestore"
	"github.com/hongjun500/lanchat/internal/observe"
	"github.com/hongjun500/lanchat/internal/presence"
	"github.com/hongjun500/lanchat/internal/store"
	"github.com/hongjun500/lanchat/internal/store/cached"
	"github.com/hongjun500/lanchat/internal/store/memory"
	"github.com/hongjun500/lanchat/internal/store/postgres"
	"github.com/hongjun500/lanchat/internal/subscriber"
	"github.com/hongjun500/lanchat/internal/transport"
	"github.com/hongjun500/lanchat/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lanchat:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]observe.Check{}
	st, monitor, err := openStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}

	files, err := filestore.New(cfg.FilesDir)
	if err != nil {
		if monitor != nil {
			_ = monitor.Close()
		}
		_ = st.Close()
		return err
	}

	deps := chat.Deps{
		Store:    st,
		Files:    files,
		Registry: presence.NewRegistry(),
		Logger:   log,
	}
	if cfg.RedisAddr != "" {
		bus := redisstream.New(cfg.RedisAddr, 0, cfg.RedisStream, "lanchat")
		defer func() { _ = bus.Close() }()
		if err := bus.Ping(ctx); err != nil {
			log.Warn("redis_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		deps.Publisher = bus
		checks["redis"] = bus.Ping
		go consumeEvents(ctx, bus, log)
	}
	router := chat.NewRouter(deps)

	srv := transport.NewServer(cfg.TCPAddr, router, transport.Options{
		OutBuffer:    cfg.OutBuffer,
		IdleTimeout:  cfg.IdleTimeout,
		FrameTimeout: cfg.FrameTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxFrameSize: cfg.MaxFileSize,
		MaxFileSize:  int64(cfg.MaxFileSize),
	}, log)
	if monitor != nil {
		srv.CloseOnShutdown(monitor)
	}
	srv.CloseOnShutdown(st)

	if cfg.HTTPAddr != "" {
		go func() {
			if err := observe.StartHTTP(ctx, cfg.HTTPAddr, observe.Handler(checks), log); err != nil {
				log.Error("http_server_exit", zap.Error(err))
			}
		}()
	}

	log.Info("lanchat_start",
		zap.String("tcp", cfg.TCPAddr), zap.String("http", cfg.HTTPAddr),
		zap.String("store", cfg.Store), zap.String("files", cfg.FilesDir))
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("tcp server: %w", err)
	}
	log.Info("lanchat_stopped")
	return nil
}

// consumeEvents 消费事件流写审计日志，Redis 暂不可用时重试建组
func consumeEvents(ctx context.Context, bus *redisstream.Bus, log *zap.Logger) {
	subs := subscriber.NewSet()
	subscriber.RegisterAll(subs, log.Named("audit"))
	for {
		err := bus.EnsureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("event_group_retry", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
	host, _ := os.Hostname()
	if err := bus.Consume(ctx, "lanchat-"+host, subs.Handle); err != nil && ctx.Err() == nil {
		log.Error("event_consume_exit", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger, checks map[string]observe.Check) (store.Store, io.Closer, error) {
	var (
		base    store.Store
		monitor io.Closer
	)
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DBDSN, log)
		if err != nil {
			return nil, nil, err
		}
		checks["postgres"] = pg.Ping
		base = pg
		if cfg.DepInterval > 0 {
			monitor = startMonitor(ctx, pg, cfg, log)
		}
	default:
		base = memory.New()
	}
	st, err := cached.New(base, cfg.UserCache)
	if err != nil {
		_ = base.Close()
		return nil, nil, err
	}
	return st, monitor, nil
}

// startMonitor 依赖监控失败不影响启动，返回 nil 表示未启用
func startMonitor(ctx context.Context, pg *postgres.Store, cfg *config.Config, log *zap.Logger) io.Closer {
	m, err := pg.NewMonitor(cfg.DBDSN, cfg.DepGroup, cfg.DepInterval)
	if err != nil {
		log.Warn("dephealth_unavailable", zap.Error(err))
		return nil
	}
	if err := m.Start(ctx); err != nil {
		log.Warn("dephealth_start_failed", zap.Error(err))
		_ = m.Close()
		return nil
	}
	log.Info("dephealth_started", zap.String("group", cfg.DepGroup), zap.Duration("interval", cfg.DepInterval))
	return m
}
