package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txorch/internal/logging"
	"github.com/vvka-141/txorch/internal/retry"
	"github.com/vvka-141/txorch/pkg/txorch"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns bounds how many transactions can run at once.
	DefaultMaxConns = 10

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime is how long an idle connection is kept.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// PoolOptions tunes the connection pool. Zero fields use the defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	ConnectAttempts int
	Logger          txorch.Logger
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	if o.MinConns <= 0 {
		o.MinConns = DefaultMinConns
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = txorch.DefaultConnectAttempts
	}
	if o.Logger == nil {
		o.Logger = logging.NewNullLogger()
	}
	return o
}

func configurePool(poolConfig *pgxpool.Config, opts PoolOptions) {
	poolConfig.MaxConns = opts.MaxConns
	poolConfig.MinConns = opts.MinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		opts.Logger.Info("%s: %s", notice.Severity, notice.Message)
	}
}

// Connect creates a connection pool for connString and verifies it with a ping.
// Transient connection failures are retried with exponential backoff.
func Connect(ctx context.Context, connString string, opts PoolOptions) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("%w: connection string is required", txorch.ErrInvalidConfig)
	}
	opts = opts.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse connection string: %v", txorch.ErrInvalidConfig, err)
	}
	configurePool(poolConfig, opts)
	host, port, database := poolConfig.ConnConfig.Host, poolConfig.ConnConfig.Port, poolConfig.ConnConfig.Database

	strategy := retry.NewExponentialBackoff(opts.ConnectAttempts-1,
		retry.WithInitialDelay(txorch.DefaultRetryInitialDelay),
		retry.WithMaxDelay(txorch.DefaultRetryMaxDelay),
	)
	onRetry := func(n int, err error, delay time.Duration) {
		opts.Logger.Info("connection attempt %d failed, retrying in %v: %v", n+1, delay, err)
	}

	var pool *pgxpool.Pool
	err = retry.Do(ctx, retry.IsTransientConnectError, strategy, onRetry, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig.Copy())
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", txorch.ErrConnectionFailed, wrapConnectionError(err, host, port, database))
	}

	opts.Logger.Verbose("connected to %s:%d/%s", host, port, database)
	return pool, nil
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
func wrapConnectionError(err error, host string, port uint16, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port

Original error: %w`, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`cannot resolve host "%s"

Original error: %w`, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`password authentication failed for database "%s"

Possible causes:
  - Wrong password in the connection string or $%s
  - User does not have access to the database

Original error: %w`, database, txorch.DatabaseURLEnv, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Possible causes:
  - max_connections reached on the server
  - pool max_conns in %s set higher than the server allows

Original error: %w`, database, txorch.ConfigFileName, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}
