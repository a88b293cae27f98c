package distributor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
	"github.com/mattcodi/fleet-updater/internal/repository/state"
)

// Options are inputs accepted by the one-shot apply entry point.
type Options struct {
	// ConfigPath is the optional path to the project registry.
	ConfigPath string
	// Project is the registry name whose update is applied.
	Project string
}

// errApplyAlreadyRunning indicates another one-shot apply holds the marker.
var errApplyAlreadyRunning = errors.New("an apply is already running")

// Run applies one project's update once and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fleet-updater")

	if IsApplyRunningNow(ctx) {
		return errApplyAlreadyRunning
	}

	marker, err := os.Create(MarkerPath())
	if err != nil {
		return fmt.Errorf("create apply marker: %w", err)
	}

	if err = marker.Close(); err != nil {
		return fmt.Errorf("close apply marker: %w", err)
	}

	defer func() {
		if _, statErr := os.Stat(MarkerPath()); statErr == nil {
			_ = os.Remove(MarkerPath())
		}
	}()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc := NewService(cfg, gitops.NewExecRunner(), state.NewFileRepository(cfg.StateFile))

	message, err := svc.ApplyUpdate(ctx, opts.Project)
	if err != nil {
		return err
	}

	logger.Info(ctx, message)

	return nil
}
