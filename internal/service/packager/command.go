package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/github"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is an optional path to the project registry (defaults to the well-known location).
	ConfigPath string
	// Projects optionally restricts the run to these registry names; empty means all.
	Projects []string
}

// errUnknownProject is returned when a requested name is not in the registry.
var errUnknownProject = errors.New("project not found in registry")

// Run executes the packaging workflow for the selected projects.
// A hard failure in one project is reported but never aborts the others;
// the first error is returned once the batch completes.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "fleet-packager")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := github.NewClient(cfg.Owner, github.TokenFromEnvironment(),
		github.WithCallTimeout(cfg.Timeout))

	svc := NewService(cfg, gitops.NewExecRunner(), client)

	if err = svc.RunAll(ctx, opts.Projects); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// selectProjects resolves the requested names against the registry,
// defaulting to every configured project in stable order.
func selectProjects(cfg *config.Config, names []string) ([]string, error) {
	if len(names) == 0 {
		for name := range cfg.Projects {
			names = append(names, name)
		}

		sort.Strings(names)

		return names, nil
	}

	for _, name := range names {
		if _, found := cfg.Projects[name]; !found {
			return nil, fmt.Errorf("%s: %w", name, errUnknownProject)
		}
	}

	return names, nil
}

// RunAll packages every selected project, continuing past per-project
// hard failures and returning the first one encountered.
func (s *Service) RunAll(ctx context.Context, names []string) error {
	selected, err := selectProjects(s.cfg, names)
	if err != nil {
		return err
	}

	var firstErr error

	for _, name := range selected {
		project := s.cfg.Projects[name]

		if _, statErr := os.Stat(project.Path); statErr != nil {
			logger.WarnKV(ctx, "Project path missing, skipping",
				"project", name, "path", project.Path)

			continue
		}

		if _, _, err = s.PackageProject(ctx, name, project); err != nil {
			logger.ErrorKV(ctx, "Project build failed", "project", name, "error", err)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
