package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/klauspost/compress/zip"

	"github.com/mattcodi/fleet-updater/internal/logger"
)

// errUnsafeEntryPath is returned for archive entries that would escape the target directory.
var errUnsafeEntryPath = errors.New("archive entry escapes target directory")

// ExtractOptions are inputs for Extract.
type ExtractOptions struct {
	// ArchivePath is the archive to unpack.
	ArchivePath string
	// TargetDir is the live deployment directory extracted into.
	TargetDir string
	// ProtectedPaths are glob patterns whose matching entries are left untouched.
	ProtectedPaths []string
}

// Extract unpacks every entry of the archive into TargetDir, overwriting
// files at matching relative paths. Entries matching a protected pattern are
// skipped so the interpreter a running deployment depends on is never
// replaced mid-update. Files present on disk but absent from the archive
// persist: extraction is an additive overlay, not a mirror.
func Extract(ctx context.Context, opts *ExtractOptions) error {
	reader, err := zip.OpenReader(opts.ArchivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = extractEntry(ctx, entry, opts); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry applies a single archive entry into the target directory.
func extractEntry(ctx context.Context, entry *zip.File, opts *ExtractOptions) error {
	relativePath, err := normalizeEntryPath(entry.Name)
	if err != nil {
		return err
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(filepath.Join(opts.TargetDir, filepath.FromSlash(relativePath)), DefaultFileMode)
	}

	if IsProtected(relativePath, opts.ProtectedPaths) {
		logger.InfoKV(ctx, "Skipping protected entry", "entry", relativePath)
		return nil
	}

	targetPath := filepath.Join(opts.TargetDir, filepath.FromSlash(relativePath))
	if err = os.MkdirAll(filepath.Dir(targetPath), DefaultFileMode); err != nil {
		return fmt.Errorf("create parent for %s: %w", relativePath, err)
	}

	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", relativePath, err)
	}

	data, err := io.ReadAll(source)

	_ = source.Close()

	if err != nil {
		return fmt.Errorf("read entry %s: %w", relativePath, err)
	}

	if _, err = os.Stat(targetPath); err != nil && os.IsNotExist(err) {
		if _, err = os.Create(targetPath); err != nil {
			return fmt.Errorf("create %s: %w", targetPath, err)
		}
	}

	mode := entry.Mode()
	if mode == 0 {
		mode = DefaultFileMode
	}

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: mode,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("apply entry %s: %w", relativePath, err)
	}

	oldPath := targetPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.DebugKV(ctx, "Extracted entry", "entry", relativePath)

	return nil
}

// normalizeEntryPath cleans an in-archive name and rejects absolute or
// escaping paths.
func normalizeEntryPath(name string) (string, error) {
	cleaned := path.Clean(filepath.ToSlash(name))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%s: %w", name, errUnsafeEntryPath)
	}

	return cleaned, nil
}

// IsProtected reports whether the normalized relative path matches any of
// the protected glob patterns. Patterns are evaluated against every
// whole-segment suffix of the path, so "venv/bin/python*" also shields
// "app/venv/bin/python3".
func IsProtected(relativePath string, patterns []string) bool {
	segments := strings.Split(relativePath, "/")

	for _, pattern := range patterns {
		for start := range segments {
			suffix := strings.Join(segments[start:], "/")

			if matched, err := path.Match(pattern, suffix); err == nil && matched {
				return true
			}
		}
	}

	return false
}
