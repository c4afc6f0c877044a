// Package database owns the sandbox database connection.
//
// The sandbox is a single logical connection, not a pool: savepoint-based
// probing and transactional view creation are inherently sequential, and a
// pool would spread session-local catalog patches across connections.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/apperrors"
	"github.com/pgvet-io/pgvet-engine/pkg/logging"
	"github.com/pgvet-io/pgvet-engine/pkg/retry"
)

// Sandbox wraps the single sandbox connection.
type Sandbox struct {
	conn   *pgx.Conn
	url    string
	logger *zap.Logger
}

// Connect establishes the sandbox connection. It refuses to operate against
// anything that is not recognizably a local/test instance, and retries the
// initial connection with backoff since the database process may still be
// starting up. If logger is nil, a no-op logger is used.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sandbox URL: %w", err)
	}

	if err := verifyLocalHost(cfg.Host); err != nil {
		return nil, err
	}

	var conn *pgx.Conn
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		var connectErr error
		conn, connectErr = pgx.ConnectConfig(ctx, cfg)
		return connectErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sandbox %s: %w",
			logging.SanitizeConnectionString(url), err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping sandbox: %w", err)
	}

	logger.Info("Connected to sandbox database",
		zap.String("url", logging.SanitizeConnectionString(url)),
		zap.String("host", cfg.Host))

	return &Sandbox{conn: conn, url: url, logger: logger}, nil
}

// verifyLocalHost accepts loopback hosts and unix sockets only. The sandbox
// schema is dropped and rebuilt wholesale; pointing the engine at a shared
// server would destroy it.
func verifyLocalHost(host string) error {
	switch {
	case host == "localhost", host == "127.0.0.1", host == "::1":
		return nil
	case strings.HasPrefix(host, "/"): // unix socket directory
		return nil
	default:
		return fmt.Errorf("%w: host %q", apperrors.ErrNotLocalDatabase, host)
	}
}

// Conn returns the underlying connection.
func (s *Sandbox) Conn() *pgx.Conn {
	return s.conn
}

// IsAlive reports whether the connection is still usable.
func (s *Sandbox) IsAlive() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// Close closes the sandbox connection.
func (s *Sandbox) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("failed to close sandbox connection: %w", err)
	}
	return nil
}
