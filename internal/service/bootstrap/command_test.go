package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mattcodi/fleet-updater/internal/github"
)

// fakeGit records git invocations.
type fakeGit struct {
	calls [][]string
	dirs  []string
}

func (g *fakeGit) Run(_ context.Context, dir string, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	g.dirs = append(g.dirs, dir)

	return "", nil
}

// TestRunWithClient_CreatesAndPushes covers directory creation and the init sequence.
func TestRunWithClient_CreatesAndPushes(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user/repos", r.URL.Path)

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"html_url": "https://github.com/mattcodi/demo", "ssh_url": "git@github.com:mattcodi/demo.git"}`)
	}))
	defer server.Close()

	client := github.NewClient("mattcodi", "token", github.WithBaseURLs(server.URL, server.URL))
	git := &fakeGit{}
	projectsRoot := t.TempDir()

	url, err := RunWithClient(context.Background(), client, git, &Options{
		Name:         "demo",
		ProjectsRoot: projectsRoot,
	})
	require.NoError(t, err)
	require.Equal(t, "https://github.com/mattcodi/demo", url)

	// Starter README written into the new project directory.
	contents, err := os.ReadFile(filepath.Join(projectsRoot, "demo", "README.md"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "# demo")

	// Init sequence targeted the project directory and wired the remote.
	require.NotEmpty(t, git.calls)
	require.Equal(t, filepath.Join(projectsRoot, "demo"), git.dirs[0])
	require.Equal(t, []string{"init"}, git.calls[0])
	require.Equal(t,
		[]string{"remote", "add", "origin", "git@github.com:mattcodi/demo.git"},
		git.calls[1])
}

// TestRunWithClient_MissingTokenIsHard refuses to bootstrap without a credential.
func TestRunWithClient_MissingTokenIsHard(t *testing.T) {
	t.Parallel()

	client := github.NewClient("mattcodi", "")

	_, err := RunWithClient(context.Background(), client, &fakeGit{}, &Options{
		Name:         "demo",
		ProjectsRoot: t.TempDir(),
	})
	require.ErrorIs(t, err, github.ErrNoToken)
}

// TestRunWithClient_ExistingDirectoryUntouched keeps an existing project tree.
func TestRunWithClient_ExistingDirectoryUntouched(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"html_url": "https://github.com/mattcodi/demo", "ssh_url": "git@github.com:mattcodi/demo.git"}`)
	}))
	defer server.Close()

	client := github.NewClient("mattcodi", "token", github.WithBaseURLs(server.URL, server.URL))

	projectsRoot := t.TempDir()
	projectPath := filepath.Join(projectsRoot, "demo")
	require.NoError(t, os.MkdirAll(projectPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectPath, "app.py"), []byte("print('hi')"), 0o644))

	_, err := RunWithClient(context.Background(), client, &fakeGit{}, &Options{
		Name:         "demo",
		ProjectsRoot: projectsRoot,
	})
	require.NoError(t, err)

	// No README injected over an existing tree.
	_, err = os.Stat(filepath.Join(projectPath, "README.md"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
