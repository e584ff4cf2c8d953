package pool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"claviger.org/internal/obs"
)

// Config sizes the pool and its breaker. Zero values take the defaults,
// which match the production tuning of the system this replaces: ten base
// connections plus twenty overflow, five-minute recycling, thirty-second
// checkout timeout, breaker tripping after three consecutive failures with
// a thirty-second recovery cooldown.
type Config struct {
	DSN string

	BaseSize        int
	Overflow        int
	CheckoutTimeout time.Duration
	MaxConnAge      time.Duration

	FailureThreshold int
	RecoveryCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseSize <= 0 {
		c.BaseSize = 10
	}
	if c.Overflow < 0 {
		c.Overflow = 0
	} else if c.Overflow == 0 {
		c.Overflow = 20
	}
	if c.CheckoutTimeout <= 0 {
		c.CheckoutTimeout = 30 * time.Second
	}
	if c.MaxConnAge <= 0 {
		c.MaxConnAge = 5 * time.Minute
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RecoveryCooldown <= 0 {
		c.RecoveryCooldown = 30 * time.Second
	}
	return c
}

// Pool owns the database handle. It is constructed once by the process
// startup routine and passed by reference to every consumer; nothing else
// in the program holds connection state.
type Pool struct {
	db              *sql.DB
	breaker         *Breaker
	checkoutTimeout time.Duration
}

// Open connects to Postgres and sizes the pool per the config.
func Open(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, errors.New("pool: dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an existing handle. Tests use it with sqlmock.
func NewWithDB(db *sql.DB, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	db.SetMaxOpenConns(cfg.BaseSize + cfg.Overflow)
	db.SetMaxIdleConns(cfg.BaseSize)
	db.SetConnMaxLifetime(cfg.MaxConnAge)
	db.SetConnMaxIdleTime(cfg.MaxConnAge / 2)
	return &Pool{
		db:              db,
		breaker:         NewBreaker("database", cfg.FailureThreshold, cfg.RecoveryCooldown),
		checkoutTimeout: cfg.CheckoutTimeout,
	}
}

// DB exposes the underlying handle for readiness probes and migrations;
// store operations should go through Do so the breaker sees them.
func (p *Pool) DB() *sql.DB { return p.db }

// Breaker exposes breaker state for status endpoints.
func (p *Pool) Breaker() *Breaker { return p.breaker }

// Close releases all connections.
func (p *Pool) Close() error { return p.db.Close() }

// Ping validates connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Do checks the breaker, checks out a validated connection within the
// checkout timeout, and runs fn on it. Infrastructure failures feed the
// breaker; domain misses (sql.ErrNoRows) and caller cancellation do not.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if err := p.breaker.Allow(); err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.checkoutTimeout)
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		cancel()
		p.publishStats()
		// The caller's own deadline or cancellation surfaces untranslated and
		// does not count against the breaker.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.breaker.Failure()
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrPoolTimeout
		}
		return err
	}
	// Validate before reuse; a dead connection is recycled here instead of
	// failing the caller's statement.
	if err := conn.PingContext(acquireCtx); err != nil {
		cancel()
		_ = conn.Close()
		p.breaker.Failure()
		p.publishStats()
		return err
	}
	cancel()

	err = fn(ctx, conn)
	_ = conn.Close()
	p.publishStats()

	if isFailure(err) {
		p.breaker.Failure()
	} else {
		p.breaker.Success()
	}
	return err
}

func (p *Pool) publishStats() {
	stats := p.db.Stats()
	obs.SetPoolStats(stats.InUse, stats.Idle)
}

func isFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
	defaultErr  error
)

// InitDefault builds the process-wide pool exactly once and returns the
// same instance on every subsequent call, regardless of config. It exists
// for embedders that cannot thread the pool through their wiring; cmd/api
// constructs its pool explicitly instead.
func InitDefault(cfg Config) (*Pool, error) {
	defaultOnce.Do(func() {
		defaultPool, defaultErr = Open(cfg)
	})
	return defaultPool, defaultErr
}
