package taskgraph

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/runtime"
	"github.com/warriorguo/taskgraph/store"
	"github.com/warriorguo/taskgraph/store/mem"
	"github.com/warriorguo/taskgraph/store/postgres"
	"github.com/warriorguo/taskgraph/types"
)

// New creates a scheduler with the given options
func New(opts ...types.RunOption) (types.Scheduler, error) {
	options := types.NewRunOptions()
	for _, opt := range opts {
		opt(options)
	}

	var s store.Store
	var err error

	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		pgConfig := &postgres.Config{
			Host:     options.PostgresConfig.Host,
			Port:     options.PostgresConfig.Port,
			User:     options.PostgresConfig.User,
			Password: options.PostgresConfig.Password,
			Database: options.PostgresConfig.Database,
			SSLMode:  options.PostgresConfig.SSLMode,
		}

		s, err = postgres.NewPostgresStore(pgConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
	} else {
		// reports and trace records stay in memory unless postgres is configured
		s = mem.NewMemStore()
	}

	return runtime.NewScheduler(s, options), nil
}

/**
 * OnInterrupt wires SIGINT/SIGTERM to a best-effort Close of the given
 * scheduler, replacing the module-level "current instance" globals the
 * provisioning scripts used for cleanup. The returned stop function
 * releases the signal handler.
 */
func OnInterrupt(ctx context.Context, s types.Scheduler) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			_ = s.Close(ctx)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
