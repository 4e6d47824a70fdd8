package commands

import (
	"context"
	"fmt"

	"github.com/benvon/taskbot/internal/app"
	"github.com/benvon/taskbot/internal/config"
	"github.com/benvon/taskbot/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is what a command needs from the running configuration
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	backends *app.Backends
}

// loadEnv loads configuration and opens the requested backends. The caller
// must call close.
func loadEnv(cmd *cobra.Command, need app.Need) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		if log, err = logger.NewDevelopmentLogger(true); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}

	backends, err := app.Open(commandContext(cmd), cfg, need, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: log, backends: backends}, nil
}

func (e *env) close() {
	e.backends.Close()
	_ = e.logger.Sync()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
