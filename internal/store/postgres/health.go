package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/jackc/pgx/v5/stdlib"
)

// Monitor 经连接池周期性检查数据库，结果以 app_dependency_* 指标出现在 /metrics
type Monitor struct {
	dh *dephealth.DepHealth
	db *sql.DB
}

// NewMonitor dsn 需为 URL 形式（postgres://...），用于指标标签
func (s *Store) NewMonitor(dsn, group string, interval time.Duration) (*Monitor, error) {
	db := stdlib.OpenDBFromPool(s.pool)
	dh, err := dephealth.New("lanchat", group,
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(dsn),
			dephealth.CheckInterval(interval),
			dephealth.Critical(true),
		),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Monitor{dh: dh, db: db}, nil
}

func (m *Monitor) Start(ctx context.Context) error { return m.dh.Start(ctx) }

// Healthy 所有依赖最近一次检查都通过；尚未检查过时为 false
func (m *Monitor) Healthy() bool {
	h := m.dh.Health()
	if len(h) == 0 {
		return false
	}
	for _, ok := range h {
		if !ok {
			return false
		}
	}
	return true
}

func (m *Monitor) Close() error {
	m.dh.Stop()
	return m.db.Close()
}
