package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattcodi/fleet-updater/internal/logger"
)

// Runner executes a git invocation inside a working directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// Step is one named git invocation within an ordered sequence.
type Step struct {
	// Name identifies the step in logs and errors.
	Name string
	// Args are the git arguments, without the leading "git".
	Args []string
	// ContinueOnFailure marks the step best-effort: its failure is logged
	// and the sequence proceeds.
	ContinueOnFailure bool
}

// ExecRunner runs the git binary via os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by the git binary.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes git with the provided arguments in dir and returns the
// combined output. The context bounds the invocation.
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(output)), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return strings.TrimSpace(string(output)), nil
}

// RunSteps executes the steps in order. A best-effort step's failure is
// logged and skipped over; any other failure aborts the sequence.
func RunSteps(ctx context.Context, runner Runner, dir string, steps []Step) error {
	for _, step := range steps {
		output, err := runner.Run(ctx, dir, step.Args...)
		if err == nil {
			logger.DebugKV(ctx, "Git step succeeded", "step", step.Name)
			continue
		}

		if step.ContinueOnFailure {
			logger.WarnKV(ctx, "Git step failed, continuing",
				"step", step.Name, "error", err, "output", output)

			continue
		}

		return fmt.Errorf("git step %s: %w", step.Name, err)
	}

	return nil
}

// SyncAndTagSteps returns the build-host sequence: synchronize with the
// remote, record the build commit and tag, and push both. Every step except
// staging is best-effort, so transient git conditions (nothing to commit,
// no remote) never block packaging or publishing.
func SyncAndTagSteps(name, versionTag string) []Step {
	var (
		commitMessage = fmt.Sprintf("auto-build: %s %s", name, versionTag)
		tagName       = fmt.Sprintf("v%s-%s", versionTag, name)
	)

	return []Step{
		{Name: "fetch", Args: []string{"fetch"}, ContinueOnFailure: true},
		{Name: "rebase", Args: []string{"pull", "--rebase"}, ContinueOnFailure: true},
		{Name: "stage", Args: []string{"add", "-A"}},
		{Name: "commit", Args: []string{"commit", "-m", commitMessage}, ContinueOnFailure: true},
		{Name: "tag", Args: []string{"tag", "-a", tagName, "-m", "Build " + versionTag}, ContinueOnFailure: true},
		{Name: "push", Args: []string{"push"}, ContinueOnFailure: true},
		{Name: "push-tags", Args: []string{"push", "--tags"}, ContinueOnFailure: true},
	}
}

// CommitUpdateSteps returns the target-host sequence recording an applied
// update. All steps are best-effort: a failed commit never fails the apply.
func CommitUpdateSteps(name string) []Step {
	return []Step{
		{Name: "stage", Args: []string{"add", "-A"}, ContinueOnFailure: true},
		{Name: "commit", Args: []string{"commit", "-m", "auto-update: " + name}, ContinueOnFailure: true},
		{Name: "push", Args: []string{"push"}, ContinueOnFailure: true},
	}
}

// InitAndPushSteps returns the bootstrap sequence pushing a fresh local
// repository to its newly created remote. All steps are best-effort.
func InitAndPushSteps(remoteURL string) []Step {
	return []Step{
		{Name: "init", Args: []string{"init"}, ContinueOnFailure: true},
		{Name: "remote-add", Args: []string{"remote", "add", "origin", remoteURL}, ContinueOnFailure: true},
		{Name: "stage", Args: []string{"add", "-A"}, ContinueOnFailure: true},
		{Name: "commit", Args: []string{"commit", "-m", "Initial commit"}, ContinueOnFailure: true},
		{Name: "branch", Args: []string{"branch", "-M", "main"}, ContinueOnFailure: true},
		{Name: "push", Args: []string{"push", "-u", "origin", "main"}, ContinueOnFailure: true},
	}
}
