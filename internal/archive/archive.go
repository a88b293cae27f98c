package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/mattcodi/fleet-updater/internal/logger"
)

const (
	// Extension is the archive file extension.
	Extension = ".zip"

	// ContentType is the MIME type used when uploading archives.
	ContentType = "application/zip"

	// DefaultFileMode is used for extracted files whose entry carries no mode.
	DefaultFileMode os.FileMode = 0o755

	// compressionLevel tunes the deflate compressor registered on the writer.
	compressionLevel = flate.DefaultCompression
)

// errNotADirectory is returned when the build root is not a directory.
var errNotADirectory = errors.New("build root is not a directory")

// ExcludedDirectories returns directory names pruned from every archive:
// version-control metadata, virtual environments, caches, IDE state and logs.
func ExcludedDirectories() []string {
	return []string{
		".git",
		".hg",
		".svn",
		"venv",
		".venv",
		"__pycache__",
		".mypy_cache",
		".pytest_cache",
		".idea",
		".vscode",
		"logs",
		"node_modules",
	}
}

// ExcludedFiles returns file names skipped in every archive:
// OS artifacts, secrets and interpreter pins.
func ExcludedFiles() []string {
	return []string{
		".DS_Store",
		"Thumbs.db",
		".env",
		".python-version",
	}
}

// BuildOptions are inputs for Build.
type BuildOptions struct {
	// Root is the project directory to snapshot.
	Root string
	// OutputPath is where the archive is written.
	OutputPath string
	// AuxiliaryFiles are absolute paths appended to the archive by base name when present.
	AuxiliaryFiles []string
	// ExcludedDirectories overrides the default directory exclusion set when non-nil.
	ExcludedDirectories []string
	// ExcludedFiles overrides the default file exclusion set when non-nil.
	ExcludedFiles []string
}

// Build snapshots the tree under Root into a zip archive at OutputPath.
// Entries are stored at paths relative to Root; excluded subtrees are pruned
// before descent, so they are never visited. Auxiliary files are appended
// last, flattened to their base names. A failed build may leave a partial
// file at OutputPath; callers must not alias it until Build returns nil.
func Build(ctx context.Context, opts *BuildOptions) error {
	info, err := os.Stat(opts.Root)
	if err != nil {
		return fmt.Errorf("stat build root: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", opts.Root, errNotADirectory)
	}

	output, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	defer func() {
		_ = output.Close()
	}()

	writer := zip.NewWriter(output)
	writer.RegisterCompressor(zip.Deflate, func(target io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(target, compressionLevel)
	})

	if err = writeTree(ctx, writer, opts); err != nil {
		return err
	}

	if err = writeAuxiliaryFiles(ctx, writer, opts.AuxiliaryFiles); err != nil {
		return err
	}

	if err = writer.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	if err = output.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

// writeTree walks the project tree and archives every non-excluded file.
func writeTree(ctx context.Context, writer *zip.Writer, opts *BuildOptions) error {
	excludedDirs := opts.ExcludedDirectories
	if excludedDirs == nil {
		excludedDirs = ExcludedDirectories()
	}

	excludedFiles := opts.ExcludedFiles
	if excludedFiles == nil {
		excludedFiles = ExcludedFiles()
	}

	var (
		dirSet  = sliceToSet(excludedDirs)
		fileSet = sliceToSet(excludedFiles)
	)

	return filepath.WalkDir(opts.Root, func(currentPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := entry.Name()

		if entry.IsDir() {
			if _, excluded := dirSet[name]; excluded && currentPath != opts.Root {
				logger.DebugKV(ctx, "Pruned excluded directory", "path", currentPath)
				return fs.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		if _, excluded := fileSet[name]; excluded {
			logger.DebugKV(ctx, "Skipped excluded file", "path", currentPath)
			return nil
		}

		relativePath, err := filepath.Rel(opts.Root, currentPath)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", currentPath, err)
		}

		return writeFile(writer, currentPath, filepath.ToSlash(relativePath))
	})
}

// writeAuxiliaryFiles appends every auxiliary file that exists on disk,
// flattened to its base name inside the archive.
func writeAuxiliaryFiles(ctx context.Context, writer *zip.Writer, files []string) error {
	for _, auxiliaryPath := range files {
		if _, err := os.Stat(auxiliaryPath); errors.Is(err, os.ErrNotExist) {
			logger.DebugKV(ctx, "Auxiliary file absent, skipping", "path", auxiliaryPath)
			continue
		} else if err != nil {
			return fmt.Errorf("stat auxiliary file %s: %w", auxiliaryPath, err)
		}

		if err := writeFile(writer, auxiliaryPath, filepath.Base(auxiliaryPath)); err != nil {
			return err
		}
	}

	return nil
}

// writeFile stores one file under the provided in-archive name.
func writeFile(writer *zip.Writer, sourcePath, archiveName string) error {
	source, err := os.Open(filepath.Clean(sourcePath))
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}

	defer func() {
		_ = source.Close()
	}()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", sourcePath, err)
	}

	//nolint:exhaustruct // Remaining header fields are irrelevant for regular files.
	header := &zip.FileHeader{
		Name:               archiveName,
		Modified:           info.ModTime(),
		UncompressedSize64: uint64(info.Size()),
		Method:             zip.Deflate,
	}
	header.SetMode(info.Mode())

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", archiveName, err)
	}

	if _, err = io.Copy(entry, source); err != nil {
		return fmt.Errorf("write entry %s: %w", archiveName, err)
	}

	return nil
}

// sliceToSet converts a slice to a set for quick lookups.
func sliceToSet[T comparable](elements []T) map[T]struct{} {
	result := make(map[T]struct{}, len(elements))
	for _, value := range elements {
		result[value] = struct{}{}
	}

	return result
}
