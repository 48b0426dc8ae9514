package types

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

func NewRunOptions() *RunOptions {
	opts := &RunOptions{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	opts.Clock = clock.New()
	opts.Logger = logrus.StandardLogger()
	return opts
}

type RunOptions struct {
	Ctx context.Context
	/**
	 * default: 4
	 * at most this many tasks of one run execute concurrently.
	 * the provisioning scripts cap this at 4-10 to avoid overwhelming
	 * the remote instance.
	 */
	MaxTaskConcurrency int `default:"4"`
	/**
	 * default: true, only set it to false when doing debugging or testing.
	 * If TaskRunAsync is false, ready tasks run inline one by one in
	 * name order, which makes scheduling fully deterministic.
	 */
	TaskRunAsync bool `default:"true"`
	/**
	 * RetryBaseDelay*2^n capped at RetryMaxDelay between failed attempts.
	 */
	RetryBaseDelay time.Duration `default:"2s"`
	RetryMaxDelay  time.Duration `default:"30s"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// PostgreSQL store configuration.
	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence.
	PostgresConfig *PostgresConfig

	Clock        clock.Clock
	Logger       *logrus.Logger
	EventHandler EventHandler
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

type RunOption func(*RunOptions)

func WithContext(ctx context.Context) RunOption {
	return func(opts *RunOptions) {
		opts.Ctx = ctx
	}
}

func SetMaxTaskConcurrency(concurrency int) RunOption {
	return func(opts *RunOptions) {
		opts.MaxTaskConcurrency = concurrency
	}
}

func DisableTaskRunAsync() RunOption {
	return func(opts *RunOptions) {
		opts.TaskRunAsync = false
	}
}

func SetRetryDelays(base, max time.Duration) RunOption {
	return func(opts *RunOptions) {
		opts.RetryBaseDelay = base
		opts.RetryMaxDelay = max
	}
}

func EnableMemStore() RunOption {
	return func(opts *RunOptions) {
		opts.MemStore = true
	}
}

// WithPostgresConfig configures the scheduler to persist reports in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) RunOption {
	return func(opts *RunOptions) {
		opts.PostgresConfig = config
	}
}

func WithClock(c clock.Clock) RunOption {
	return func(opts *RunOptions) {
		opts.Clock = c
	}
}

func WithLogger(logger *logrus.Logger) RunOption {
	return func(opts *RunOptions) {
		opts.Logger = logger
	}
}

func WithEventHandler(handler EventHandler) RunOption {
	return func(opts *RunOptions) {
		opts.EventHandler = handler
	}
}
