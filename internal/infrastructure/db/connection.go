package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/persistence"
	"github.com/sawpanic/portfoliosim/internal/persistence/postgres"
)

// Manager owns the database connection and the run sink built on it
type Manager struct {
	db      *sqlx.DB
	config  Config
	runs    *persistence.BreakerRepo
	timeout time.Duration
}

// NewManager opens and pings the database. A disabled config yields a
// manager with no sink.
func NewManager(ctx context.Context, config Config, breaker persistence.BreakerConfig) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m, err := NewManagerWithDB(ctx, db, config, breaker)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewManagerWithDB wires the sink onto an existing connection
func NewManagerWithDB(ctx context.Context, db *sqlx.DB, config Config, breaker persistence.BreakerConfig) (*Manager, error) {
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
	}

	log.Info().
		Int("max_open_conns", config.MaxOpenConns).
		Dur("query_timeout", config.QueryTimeout).
		Msg("Run sink connected")

	return &Manager{
		db:      db,
		config:  config,
		runs:    persistence.NewBreakerRepo(postgres.NewRunsRepo(db, config.QueryTimeout), breaker),
		timeout: config.QueryTimeout,
	}, nil
}

// Runs returns the breaker-guarded run repository, or nil if disabled
func (m *Manager) Runs() persistence.RunRepo {
	if m.runs == nil {
		return nil
	}
	return m.runs
}

// BreakerState reports the sink breaker state, "disabled" without a database
func (m *Manager) BreakerState() string {
	if m.runs == nil {
		return "disabled"
	}
	return m.runs.State()
}

// IsEnabled returns whether database persistence is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Health pings the database and reports pool statistics
func (m *Manager) Health(ctx context.Context) persistence.RepoHealth {
	if !m.IsEnabled() {
		return persistence.RepoHealth{
			Healthy: true,
			Details: map[string]string{"status": "disabled"},
		}
	}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	health := persistence.RepoHealth{Healthy: true}
	if err := m.db.PingContext(pingCtx); err != nil {
		health.Healthy = false
		health.Errors = append(health.Errors, fmt.Sprintf("ping failed: %v", err))
	}

	stats := m.db.Stats()
	health.Details = map[string]string{
		"status":     "enabled",
		"breaker":    m.runs.State(),
		"max_open":   strconv.Itoa(stats.MaxOpenConnections),
		"open":       strconv.Itoa(stats.OpenConnections),
		"in_use":     strconv.Itoa(stats.InUse),
		"idle":       strconv.Itoa(stats.Idle),
		"wait_count": strconv.FormatInt(stats.WaitCount, 10),
	}
	health.ResponseTime = time.Since(start).Milliseconds()
	return health
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
