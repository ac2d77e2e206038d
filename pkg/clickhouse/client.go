package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client is the connection handle the repositories share.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

const pingTimeout = 10 * time.Second

type client struct {
	conn driver.Conn
}

// New opens a pool for cfg and pings it within pingTimeout. Both binaries
// refuse to start without ClickHouse, so a failed ping closes the pool and
// returns the driver error, a *clickhouse.Exception when the server answered.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Client, error) {
	opts, err := options(cfg, log)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		logPingFailure(log, cfg.Hosts, err)
		_ = conn.Close()
		return nil, err
	}
	return &client{conn: conn}, nil
}

// options maps Config onto the driver's native-protocol options.
func options(cfg Config, log *zap.SugaredLogger) (*clickhouse.Options, error) {
	if len(cfg.Hosts) == 0 {
		return nil, errors.New("invalid clickhouse hosts: at least one host is required")
	}
	if cfg.BlockBufferSize < 0 || cfg.BlockBufferSize > 255 {
		return nil, fmt.Errorf("invalid clickhouse block buffer size %d: must be within 0..255", cfg.BlockBufferSize)
	}

	opts := &clickhouse.Options{
		Addr:     cfg.Hosts,
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": cfg.MaxExecutionTime,
			"max_block_size":     cfg.MaxBlockSize,
		},
		Compression:          &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:          time.Duration(cfg.DialTimeout) * time.Second,
		MaxOpenConns:         cfg.MaxOpenConns,
		MaxIdleConns:         cfg.MaxIdleConns,
		ConnMaxLifetime:      time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
		BlockBufferSize:      uint8(cfg.BlockBufferSize),
		MaxCompressionBuffer: cfg.MaxCompressionBuffer,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: cfg.ClientName, Version: cfg.ClientVersion}},
		},
	}
	if cfg.UseTLS {
		//nolint:gosec // self-signed development clusters
		opts.TLS = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	}
	if cfg.Debug && log != nil {
		opts.Debug = true
		opts.Debugf = log.Named("clickhouse").Debugf
	}
	return opts, nil
}

func logPingFailure(log *zap.SugaredLogger, hosts []string, err error) {
	if log == nil {
		return
	}
	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		log.Errorw("ClickHouse rejected ping", "hosts", hosts, "code", exception.Code, "message", exception.Message)
		return
	}
	log.Errorw("ClickHouse unreachable", "hosts", hosts, "error", err)
}

func (c *client) Conn() driver.Conn {
	return c.conn
}

func (c *client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *client) Close() error {
	return c.conn.Close()
}
