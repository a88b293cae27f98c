package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattcodi/fleet-updater/internal/github"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
)

// Options contains inputs for the repository bootstrap entry point.
type Options struct {
	// Name is the remote repository name.
	Name string
	// Description is the optional repository description.
	Description string
	// ProjectsRoot is where the local project directory lives (defaults to /opt).
	ProjectsRoot string
}

// defaultProjectsRoot hosts newly bootstrapped project directories.
const defaultProjectsRoot = "/opt"

// Run creates the remote repository and pushes an initial local commit.
// Creating the remote requires a credential and is the only hard step;
// every local git step afterwards is best-effort, mirroring the apply-side
// policy.
func Run(ctx context.Context, opts *Options) (string, error) {
	ctx = logger.WithName(ctx, "bootstrap")

	client := github.NewClient(os.Getenv("GITHUB_OWNER"), github.TokenFromEnvironment())

	return RunWithClient(ctx, client, gitops.NewExecRunner(), opts)
}

// RunWithClient is Run with injectable collaborators.
func RunWithClient(ctx context.Context, client *github.Client, git gitops.Runner, opts *Options) (string, error) {
	repository, err := client.CreateRepository(ctx, opts.Name, opts.Description)
	if err != nil {
		return "", fmt.Errorf("create remote repository: %w", err)
	}

	logger.InfoKV(ctx, "Repository created", "url", repository.HTMLURL)

	projectsRoot := opts.ProjectsRoot
	if projectsRoot == "" {
		projectsRoot = defaultProjectsRoot
	}

	projectPath := filepath.Join(projectsRoot, opts.Name)
	if err = ensureProjectDirectory(ctx, projectPath, opts.Name); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Initializing local repository and pushing first version",
		"path", projectPath)

	if err = gitops.RunSteps(ctx, git, projectPath, gitops.InitAndPushSteps(repository.SSHURL)); err != nil {
		// Unreachable with all-soft steps, but kept for symmetry.
		logger.WarnKV(ctx, "Local initialization incomplete", "error", err)
	}

	return repository.HTMLURL, nil
}

// ensureProjectDirectory creates the project directory with a starter
// README when it does not exist yet.
func ensureProjectDirectory(ctx context.Context, projectPath, name string) error {
	if _, err := os.Stat(projectPath); err == nil {
		return nil
	}

	logger.InfoKV(ctx, "Project path missing, creating new project directory",
		"path", projectPath)

	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	readme := fmt.Sprintf("# %s\n", name)
	if err := os.WriteFile(filepath.Join(projectPath, "README.md"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("write README: %w", err)
	}

	return nil
}
