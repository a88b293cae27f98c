package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattcodi/fleet-updater/internal/archive"
	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/github"
	"github.com/mattcodi/fleet-updater/internal/gitops"
	"github.com/mattcodi/fleet-updater/internal/logger"
)

const (
	// VersionTagLayout renders the timestamp-derived version tag.
	VersionTagLayout = "20060102-150405"

	// latestAliasSuffix names the alias of the newest archive of a project.
	latestAliasSuffix = "-latest"
)

// Service runs the build-host pipeline: archive, git sync-and-tag, publish.
type Service struct {
	// cfg holds the project registry and archive settings.
	cfg *config.Config
	// git executes the version-control steps around a build.
	git gitops.Runner
	// client publishes releases; it may carry no token.
	client *github.Client
	// now supplies version tags and is replaceable in tests.
	now func() time.Time
}

// NewService creates the packager service over the provided collaborators.
func NewService(cfg *config.Config, git gitops.Runner, client *github.Client) *Service {
	return &Service{
		cfg:    cfg,
		git:    git,
		client: client,
		now:    time.Now,
	}
}

// PackageProject builds one project: snapshot the tree into a versioned
// archive (when enabled), synchronize and tag the source repository, and
// publish the archive as a release asset. It returns the version tag and
// the archive path, which is empty when archive generation is disabled.
func (s *Service) PackageProject(ctx context.Context, name string, project config.Project) (string, string, error) {
	ctx = logger.WithKV(ctx, "project", name)

	versionTag := s.now().Format(VersionTagLayout)
	logger.InfoKV(ctx, "Building project", "version_tag", versionTag)

	archivePath, err := s.buildArchive(ctx, name, project, versionTag)
	if err != nil {
		return "", "", fmt.Errorf("build archive: %w", err)
	}

	logger.InfoKV(ctx, "Versioning source repository", "path", project.Path)

	if err = gitops.RunSteps(ctx, s.git, project.Path, gitops.SyncAndTagSteps(name, versionTag)); err != nil {
		return "", "", fmt.Errorf("version source: %w", err)
	}

	if err = s.publish(ctx, name, versionTag, archivePath); err != nil {
		return "", "", fmt.Errorf("publish release: %w", err)
	}

	return versionTag, archivePath, nil
}

// buildArchive writes the versioned archive, its checksum sidecar, and only
// then replaces the latest alias. A failed build leaves the prior alias
// untouched. Returns an empty path when archive generation is disabled.
func (s *Service) buildArchive(ctx context.Context, name string, project config.Project, versionTag string) (string, error) {
	if !s.cfg.ArchiveEnabled {
		logger.Info(ctx, "Archive generation disabled, skipping build")
		return "", nil
	}

	if err := os.MkdirAll(s.cfg.ArchiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	archivePath := filepath.Join(s.cfg.ArchiveDir, name+"-"+versionTag+archive.Extension)

	err := archive.Build(ctx, &archive.BuildOptions{
		Root:           project.Path,
		OutputPath:     archivePath,
		AuxiliaryFiles: s.cfg.AuxiliaryFiles,
	})
	if err != nil {
		return "", err
	}

	sidecarPath, err := archive.WriteSidecar(archivePath)
	if err != nil {
		return "", err
	}

	aliasPath := filepath.Join(s.cfg.ArchiveDir, name+latestAliasSuffix+archive.Extension)
	if err = archive.ReplaceAlias(archivePath, aliasPath); err != nil {
		return "", err
	}

	// Keep the alias verifiable through a matching sidecar.
	if err = archive.ReplaceAlias(sidecarPath, archive.SidecarPath(aliasPath)); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Archive written", "archive", archivePath, "alias", aliasPath)

	return archivePath, nil
}

// publish uploads the archive as a release asset keyed by the version tag.
// Publishing is skipped with an informational log when no token is
// configured or no archive was produced; it is idempotent per tag.
func (s *Service) publish(ctx context.Context, name, versionTag, archivePath string) error {
	if !s.client.HasToken() {
		logger.Warn(ctx, "No API token set, skipping release upload")
		return nil
	}

	if archivePath == "" {
		logger.Info(ctx, "No archive produced, release upload skipped")
		return nil
	}

	release, err := s.client.EnsureRelease(ctx, name, versionTag)
	if err != nil {
		return err
	}

	err = s.client.UploadReleaseAsset(ctx, name, release.ID, archivePath, archive.ContentType)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release asset uploaded",
		"release", release.TagName, "asset", filepath.Base(archivePath))

	return nil
}
