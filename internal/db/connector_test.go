package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/vvka-141/txorch/internal/testing"
	"github.com/vvka-141/txorch/pkg/txorch"
)

func TestWrapConnectionError(t *testing.T) {
	tests := []struct {
		name         string
		errMsg       string
		host         string
		wantContains string
	}{
		{
			name:         "connection refused",
			errMsg:       "dial tcp 127.0.0.1:5432: connection refused",
			host:         "127.0.0.1",
			wantContains: "connection refused to 127.0.0.1:5432",
		},
		{
			name:         "actively refused (Windows)",
			errMsg:       "dial tcp 127.0.0.1:5432: connectex: No connection could be made because the target machine actively refused it",
			host:         "127.0.0.1",
			wantContains: "connection refused to 127.0.0.1:5432",
		},
		{
			name:         "no such host",
			errMsg:       "dial tcp: lookup badhost.example.com: no such host",
			host:         "badhost.example.com",
			wantContains: `cannot resolve host "badhost.example.com"`,
		},
		{
			name:         "password",
			errMsg:       `FATAL: password authentication failed for user "app" (SQLSTATE 28P01)`,
			host:         "db",
			wantContains: txorch.DatabaseURLEnv,
		},
		{
			name:         "too many connections",
			errMsg:       "FATAL: sorry, too many clients already: too many connections",
			host:         "db",
			wantContains: txorch.ConfigFileName,
		},
		{
			name:         "other",
			errMsg:       "tls: handshake failure",
			host:         "db",
			wantContains: "failed to connect to database",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := errors.New(tt.errMsg)
			err := wrapConnectionError(original, tt.host, 5432, "shop")

			assert.Contains(t, err.Error(), tt.wantContains)
			assert.ErrorIs(t, err, original)
		})
	}
}

func TestPoolOptions_Defaults(t *testing.T) {
	opts := PoolOptions{}.withDefaults()

	assert.Equal(t, int32(DefaultMaxConns), opts.MaxConns)
	assert.Equal(t, int32(DefaultMinConns), opts.MinConns)
	assert.Equal(t, txorch.DefaultConnectAttempts, opts.ConnectAttempts)
	assert.NotNil(t, opts.Logger)

	opts = PoolOptions{MaxConns: 4, ConnectAttempts: 1}.withDefaults()
	assert.Equal(t, int32(4), opts.MaxConns)
	assert.Equal(t, 1, opts.ConnectAttempts)
}

func TestConfigurePool(t *testing.T) {
	poolConfig, err := pgxpool.ParseConfig("postgres://app@localhost:5432/shop")
	require.NoError(t, err)

	configurePool(poolConfig, PoolOptions{MaxConns: 7, MinConns: 2}.withDefaults())

	assert.Equal(t, int32(7), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, DefaultMaxConnIdleTime, poolConfig.MaxConnIdleTime)
	assert.NotNil(t, poolConfig.ConnConfig.OnNotice)
}

func TestConnect_InvalidConfig(t *testing.T) {
	tests := map[string]string{
		"empty":     "",
		"malformed": "postgres://localhost:notaport/db",
	}
	for name, connString := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Connect(context.Background(), connString, PoolOptions{})
			assert.ErrorIs(t, err, txorch.ErrInvalidConfig)
			assert.Equal(t, txorch.ExitConfigError, txorch.ExitCodeForError(err))
		})
	}
}

func TestConnect_Unreachable(t *testing.T) {
	testhelpers.SkipIfShort(t)

	_, err := Connect(context.Background(), "postgres://app@127.0.0.1:1/shop?connect_timeout=2", PoolOptions{ConnectAttempts: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, txorch.ErrConnectionFailed)
	assert.Equal(t, txorch.ExitConnectionError, txorch.ExitCodeForError(err))
}

func TestConnect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, "postgres://app@127.0.0.1:1/shop", PoolOptions{ConnectAttempts: 5})
	assert.ErrorIs(t, err, txorch.ErrConnectionFailed)
}

func TestConnect_Integration(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)

	pool, err := Connect(context.Background(), connString, PoolOptions{MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	assert.Equal(t, int32(2), pool.Config().MaxConns)

	var one int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
