package distributor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/repository/state"
)

// fakeGit records git invocations without executing anything.
type fakeGit struct {
	calls [][]string
}

func (g *fakeGit) Run(_ context.Context, _ string, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	return "", nil
}

// buildArchiveFile writes a zip with the provided entries and returns its path.
func buildArchiveFile(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()

	archivePath := filepath.Join(dir, "demo-latest.zip")

	output, err := os.Create(archivePath)
	require.NoError(t, err)

	writer := zip.NewWriter(output)
	for name, content := range entries {
		entry, createErr := writer.Create(name)
		require.NoError(t, createErr)

		_, writeErr := entry.Write([]byte(content))
		require.NoError(t, writeErr)
	}

	require.NoError(t, writer.Close())
	require.NoError(t, output.Close())

	return archivePath
}

// newTestService builds a service for one project with fakes wired in.
func newTestService(t *testing.T, updateURL string) (*Service, *fakeGit, string) {
	t.Helper()

	target := t.TempDir()

	cfg := &config.Config{
		Projects: map[string]config.Project{
			"demo": {Path: target, UpdateURL: updateURL, Service: "demo.service"},
		},
		StateFile: filepath.Join(t.TempDir(), "state.json"),
	}
	require.NoError(t, config.Validate(cfg))

	git := &fakeGit{}
	svc := NewService(cfg, git, state.NewFileRepository(cfg.StateFile))

	return svc, git, target
}

// TestApplyUpdate_LocalSource covers the full pipeline with a local archive.
func TestApplyUpdate_LocalSource(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py":  "print('v2')",
		"bin/run": "#!/bin/sh",
	})

	svc, git, target := newTestService(t, archivePath)

	var restarted []string

	svc.restart = func(_ context.Context, service string) error {
		restarted = append(restarted, service)
		return nil
	}

	message, err := svc.ApplyUpdate(context.Background(), "demo")
	require.NoError(t, err)
	require.Contains(t, message, "demo")

	contents, err := os.ReadFile(filepath.Join(target, "app.py"))
	require.NoError(t, err)
	require.Equal(t, "print('v2')", string(contents))

	contents, err = os.ReadFile(filepath.Join(target, "bin", "run"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh", string(contents))

	// Post-extraction side effects ran.
	require.Equal(t, []string{"demo.service"}, restarted)
	require.Len(t, git.calls, 3)
	require.Equal(t, []string{"commit", "-m", "auto-update: demo"}, git.calls[1])

	record, err := svc.repo.Record(context.Background(), "demo")
	require.NoError(t, err)
	require.Contains(t, record.Message, "demo")
	require.NotEmpty(t, record.Checksum)
}

// TestApplyUpdate_ChecksumMismatchAbortsBeforeExtraction leaves the
// deployment directory unmodified.
func TestApplyUpdate_ChecksumMismatchAbortsBeforeExtraction(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py": "print('v2')",
	})
	require.NoError(t, os.WriteFile(archivePath+".sha256", []byte("deadbeef\n"), 0o644))

	svc, git, target := newTestService(t, archivePath)
	svc.restart = func(_ context.Context, _ string) error {
		t.Error("restart must not run after a failed verification")
		return nil
	}

	_, err := svc.ApplyUpdate(context.Background(), "demo")
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(target, "app.py"))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, git.calls)
}

// TestApplyUpdate_LocalSidecarVerified accepts a matching local sidecar.
func TestApplyUpdate_LocalSidecarVerified(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py": "print('v2')",
	})

	contents, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	digest := sha256.Sum256(contents)
	require.NoError(t, os.WriteFile(
		archivePath+".sha256", []byte(hex.EncodeToString(digest[:])+"\n"), 0o644))

	svc, _, target := newTestService(t, archivePath)
	svc.restart = func(_ context.Context, _ string) error { return nil }

	_, err = svc.ApplyUpdate(context.Background(), "demo")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(target, "app.py"))
	require.NoError(t, err)
}

// TestApplyUpdate_RemoteSource fetches over HTTP; the absent sidecar (404)
// skips verification.
func TestApplyUpdate_RemoteSource(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py": "print('remote')",
	})
	archiveBytes, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /demo-latest.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archiveBytes)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc, _, target := newTestService(t, server.URL+"/demo-latest.zip")
	svc.restart = func(_ context.Context, _ string) error { return nil }

	message, err := svc.ApplyUpdate(context.Background(), "demo")
	require.NoError(t, err)
	require.Contains(t, message, "demo")

	contents, err := os.ReadFile(filepath.Join(target, "app.py"))
	require.NoError(t, err)
	require.Equal(t, "print('remote')", string(contents))
}

// TestApplyUpdate_RemoteSidecarGatesExtraction verifies a fetched sidecar.
func TestApplyUpdate_RemoteSidecarGatesExtraction(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py": "print('remote')",
	})
	archiveBytes, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /demo-latest.zip", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archiveBytes)
	})
	mux.HandleFunc("GET /demo-latest.zip.sha256", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintln(w, "deadbeef")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc, _, target := newTestService(t, server.URL+"/demo-latest.zip")

	_, err = svc.ApplyUpdate(context.Background(), "demo")
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(target, "app.py"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestApplyUpdate_FetchFailureIsHard aborts on a non-success response.
func TestApplyUpdate_FetchFailureIsHard(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, git, _ := newTestService(t, server.URL+"/demo-latest.zip")

	_, err := svc.ApplyUpdate(context.Background(), "demo")
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.Empty(t, git.calls)
}

// TestApplyUpdate_UnknownProject returns the sentinel.
func TestApplyUpdate_UnknownProject(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, "/nonexistent/demo-latest.zip")

	_, err := svc.ApplyUpdate(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUnknownProject)
}

// TestApplyUpdate_RestartFailureIsSoft still reports success.
func TestApplyUpdate_RestartFailureIsSoft(t *testing.T) {
	t.Parallel()

	sourceDir := t.TempDir()
	archivePath := buildArchiveFile(t, sourceDir, map[string]string{
		"app.py": "print('v2')",
	})

	svc, _, _ := newTestService(t, archivePath)
	svc.restart = func(_ context.Context, _ string) error {
		return errors.New("unit not loaded")
	}

	message, err := svc.ApplyUpdate(context.Background(), "demo")
	require.NoError(t, err)
	require.Contains(t, message, "demo")
}

// TestProjectLock_PerProject hands out one mutex per project.
func TestProjectLock_PerProject(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, "/nonexistent/demo-latest.zip")

	require.Same(t, svc.projectLock("a"), svc.projectLock("a"))
	require.NotSame(t, svc.projectLock("a"), svc.projectLock("b"))
}
