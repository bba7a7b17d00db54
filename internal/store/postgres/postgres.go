// Package postgres 基于 pgxpool 的 store.Store 实现，表结构由内嵌的 golang-migrate 迁移维护。
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hongjun500/lanchat/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Open 先迁移再建连接池
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if err := Migrate(dsn, log); err != nil {
		return nil, err
	}
	pool, err := Connect(ctx, dsn, log)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, log: log}, nil
}

// Connect 创建连接池并 ping
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("postgres_connected",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database))
	return pool, nil
}

// Migrate 应用内嵌迁移，已是最新版本时不报错
func Migrate(dsn string, log *zap.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info("postgres_migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// migrateURL golang-migrate 的 pgx/v5 驱动按 pgx5:// 方案注册
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (s *Store) AuthenticateUser(ctx context.Context, username, password string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE username = $1 AND password = $2`,
		username, password).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("authenticate %q: %w", username, err)
	}
	return id, nil
}

func (s *Store) AddUser(ctx context.Context, username, password string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`,
		username, password).Scan(&id)
	if isUniqueViolation(err) {
		return 0, store.ErrUserExists
	}
	if err != nil {
		return 0, fmt.Errorf("add user %q: %w", username, err)
	}
	return id, nil
}

func (s *Store) GetUsername(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get username %d: %w", userID, err)
	}
	return name, nil
}

func (s *Store) GetUserID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get user id %q: %w", username, err)
	}
	return id, nil
}

func (s *Store) StoreMessage(ctx context.Context, senderID, receiverID int64, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)`,
		senderID, receiverID, content)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

func (s *Store) StoreFile(ctx context.Context, rec store.FileRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO files (sender_id, receiver_id, filename, stored_name, size, checksum)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.SenderID, rec.ReceiverID, rec.Filename, rec.StoredName, rec.Size, rec.Checksum)
	if err != nil {
		return fmt.Errorf("store file %q: %w", rec.Filename, err)
	}
	return nil
}

func (s *Store) GetContacts(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username FROM users WHERE id <> $1 ORDER BY username`, userID)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	return names, nil
}

// Ping 供 /healthz 使用
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
