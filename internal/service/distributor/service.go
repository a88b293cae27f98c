package distributor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattcodi/fleet-updater/internal/archive"
	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/domain/deployment"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
	"github.com/mattcodi/fleet-updater/internal/repository/state"
	"github.com/mattcodi/fleet-updater/internal/service/common"
)

var (
	// ErrUnknownProject is returned when the requested name is not in the registry.
	ErrUnknownProject = errors.New("project not found in registry")
	// ErrTimeout indicates an artifact fetch exceeded its bounded wait.
	ErrTimeout = errors.New("fetch timed out")
	// errBadHTTPStatus is returned for a non-success artifact response.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Service runs the fetch-verify-extract-commit-restart pipeline.
// Concurrent applies for different projects proceed independently;
// concurrent applies for the same project are serialized by a per-project
// mutex held across the whole pipeline.
type Service struct {
	// cfg holds the project registry and extraction settings.
	cfg *config.Config
	// git records applied updates into each project's repository.
	git gitops.Runner
	// repo persists apply records; it may be nil.
	repo state.Repository
	// httpClient fetches remote artifacts with a bounded timeout.
	httpClient *http.Client
	// restart issues the privileged service restart and is replaceable in tests.
	restart func(ctx context.Context, service string) error

	// mu guards locks.
	mu sync.Mutex
	// locks holds the per-project mutexes.
	locks map[string]*sync.Mutex
}

// NewService creates the distributor service over the provided collaborators.
func NewService(cfg *config.Config, git gitops.Runner, repo state.Repository) *Service {
	return &Service{
		cfg:        cfg,
		git:        git,
		repo:       repo,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		restart:    restartSystemdUnit,
		locks:      make(map[string]*sync.Mutex),
	}
}

// ApplyUpdate resolves, verifies, and extracts the newest archive of the
// named project, then records the change and restarts the project's
// service. Steps after extraction are best-effort: the returned message
// reports success once extraction completes.
func (s *Service) ApplyUpdate(ctx context.Context, name string) (string, error) {
	project, found := s.cfg.Projects[name]
	if !found {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownProject)
	}

	lock := s.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	ctx = logger.WithKV(ctx, "project", name)
	logger.Info(ctx, "Starting update")

	temporaryDirectory, err := os.MkdirTemp("", "fleet-updater-")
	if err != nil {
		return "", fmt.Errorf("create temporary directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(temporaryDirectory)
	}()

	archivePath := filepath.Join(temporaryDirectory, "update"+archive.Extension)

	sidecarPath, err := s.resolve(ctx, project.UpdateURL, archivePath)
	if err != nil {
		return "", fmt.Errorf("resolve update source: %w", err)
	}

	if sidecarPath != "" {
		logger.Info(ctx, "Verifying archive checksum against sidecar")

		if err = archive.VerifySidecar(archivePath, sidecarPath); err != nil {
			return "", fmt.Errorf("verify archive: %w", err)
		}
	} else {
		logger.Debug(ctx, "No checksum sidecar found, skipping verification")
	}

	err = archive.Extract(ctx, &archive.ExtractOptions{
		ArchivePath:    archivePath,
		TargetDir:      project.Path,
		ProtectedPaths: s.cfg.ProtectedPaths,
	})
	if err != nil {
		return "", fmt.Errorf("extract archive: %w", err)
	}

	message := fmt.Sprintf("%s updated successfully", name)

	// Everything past extraction is a best-effort side effect.
	s.commitUpdate(ctx, name, project)
	s.restartService(ctx, project)
	s.saveRecord(ctx, name, archivePath, message)

	logger.Info(ctx, "Update applied")

	return message, nil
}

// projectLock returns the mutex serializing applies for one project.
func (s *Service) projectLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, found := s.locks[name]
	if !found {
		lock = new(sync.Mutex)
		s.locks[name] = lock
	}

	return lock
}

// resolve materializes the update source at archivePath and returns the
// local path of its checksum sidecar, or "" when no sidecar exists.
func (s *Service) resolve(ctx context.Context, updateURL, archivePath string) (string, error) {
	if strings.HasPrefix(updateURL, "/") {
		if _, err := os.Stat(updateURL); err == nil {
			logger.InfoKV(ctx, "Using local update source", "source", updateURL)
			return s.resolveLocal(updateURL, archivePath)
		}
	}

	logger.InfoKV(ctx, "Fetching update source", "url", updateURL)

	return s.resolveRemote(ctx, updateURL, archivePath)
}

// resolveLocal copies the archive bytes, and the sidecar when present.
func (s *Service) resolveLocal(sourcePath, archivePath string) (string, error) {
	if err := copyFile(sourcePath, archivePath); err != nil {
		return "", err
	}

	sourceSidecar := archive.SidecarPath(sourcePath)
	if _, err := os.Stat(sourceSidecar); errors.Is(err, os.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("stat sidecar: %w", err)
	}

	sidecarPath := archive.SidecarPath(archivePath)
	if err := copyFile(sourceSidecar, sidecarPath); err != nil {
		return "", err
	}

	return sidecarPath, nil
}

// resolveRemote downloads the archive, then probes for a sidecar at the
// conventional companion URL. A 404 on the sidecar means verification is
// skipped; any other sidecar failure is as hard as an archive failure.
func (s *Service) resolveRemote(ctx context.Context, updateURL, archivePath string) (string, error) {
	if err := s.fetchFile(ctx, updateURL, archivePath); err != nil {
		return "", err
	}

	sidecarPath := archive.SidecarPath(archivePath)

	err := s.fetchFile(ctx, updateURL+archive.SidecarSuffix, sidecarPath)

	switch {
	case err == nil:
		return sidecarPath, nil
	case errors.Is(err, os.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("fetch sidecar: %w", err)
	}
}

// fetchFile downloads one URL to the output path. A 404 surfaces as
// os.ErrNotExist so callers can treat optional companions as absent; any
// other non-success status is a hard failure.
func (s *Service) fetchFile(ctx context.Context, fetchURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, http.NoBody)
	if err != nil {
		return err
	}

	response, err := s.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return fmt.Errorf("%s: %w", fetchURL, ErrTimeout)
		}

		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", fetchURL, os.ErrNotExist)
	case response.StatusCode != http.StatusOK:
		return fmt.Errorf("%s, %s: %w", fetchURL, response.Status, errBadHTTPStatus)
	}

	output, err := os.Create(outputPath)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, response.Body); err != nil {
		_ = output.Close()

		return err
	}

	return output.Close()
}

// commitUpdate records the extracted changes into the project repository.
// Failures are logged, never escalated.
func (s *Service) commitUpdate(ctx context.Context, name string, project config.Project) {
	if err := gitops.RunSteps(ctx, s.git, project.Path, gitops.CommitUpdateSteps(name)); err != nil {
		logger.WarnKV(ctx, "Recording update in git failed", "error", err)
	}
}

// restartService restarts the configured unit. Failures are logged, never escalated.
func (s *Service) restartService(ctx context.Context, project config.Project) {
	if project.Service == "" {
		return
	}

	if err := s.restart(ctx, project.Service); err != nil {
		logger.WarnKV(ctx, "Service restart failed",
			"service", project.Service, "error", err)

		return
	}

	logger.InfoKV(ctx, "Service restarted", "service", project.Service)
}

// saveRecord persists the apply record. Failures are logged, never escalated.
func (s *Service) saveRecord(ctx context.Context, name, archivePath, message string) {
	if s.repo == nil {
		return
	}

	record := &deployment.Record{
		Project:   name,
		Message:   message,
		AppliedAt: time.Now().UTC(),
	}

	if checksum, err := archive.FileChecksum(archivePath); err == nil {
		record.Checksum = hex.EncodeToString(checksum)
	}

	if actor, err := common.DetectActor(); err == nil {
		record.Actor = actor
	}

	if err := s.repo.Save(ctx, record); err != nil {
		logger.WarnKV(ctx, "Saving apply record failed", "error", err)
	}
}

// restartSystemdUnit issues the privileged restart of a systemd unit.
func restartSystemdUnit(ctx context.Context, service string) error {
	return exec.CommandContext(ctx, "sudo", "systemctl", "restart", service).Run()
}

// copyFile copies source bytes to the destination path.
func copyFile(sourcePath, destinationPath string) error {
	source, err := os.Open(filepath.Clean(sourcePath))
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	destination, err := os.Create(destinationPath)
	if err != nil {
		return err
	}

	if _, err = io.Copy(destination, source); err != nil {
		_ = destination.Close()

		return err
	}

	return destination.Close()
}
