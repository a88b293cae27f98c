package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// writeTestFile creates a file with parent directories and content.
func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// archiveNames lists the entry names of a zip archive.
func archiveNames(t *testing.T, archivePath string) []string {
	t.Helper()

	reader, err := zip.OpenReader(archivePath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, reader.Close())
	}()

	names := make([]string, 0, len(reader.File))
	for _, entry := range reader.File {
		names = append(names, entry.Name)
	}

	return names
}

// TestBuild_ExcludesDirectoriesAndFiles verifies that excluded subtrees and
// file names never reach the archive while regular content does.
func TestBuild_ExcludesDirectoriesAndFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "app.py"), "print('hi')")
	writeTestFile(t, filepath.Join(root, "bin", "run"), "#!/bin/sh")
	writeTestFile(t, filepath.Join(root, ".git", "HEAD"), "ref: main")
	writeTestFile(t, filepath.Join(root, "venv", "bin", "python3"), "elf")
	writeTestFile(t, filepath.Join(root, "__pycache__", "app.pyc"), "pyc")
	writeTestFile(t, filepath.Join(root, ".env"), "SECRET=1")
	writeTestFile(t, filepath.Join(root, ".DS_Store"), "junk")

	archivePath := filepath.Join(t.TempDir(), "demo-20250101-120000.zip")
	err := Build(context.Background(), &BuildOptions{
		Root:       root,
		OutputPath: archivePath,
	})
	require.NoError(t, err)

	names := archiveNames(t, archivePath)
	require.ElementsMatch(t, []string{"app.py", "bin/run"}, names)
}

// TestBuild_AppendsAuxiliaryFilesByBaseName checks the flattened appendix.
func TestBuild_AppendsAuxiliaryFilesByBaseName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "app.py"), "print('hi')")

	auxiliaryDir := t.TempDir()
	auxiliaryPath := filepath.Join(auxiliaryDir, "config.yaml")
	writeTestFile(t, auxiliaryPath, "projects: {}")

	archivePath := filepath.Join(t.TempDir(), "demo.zip")
	err := Build(context.Background(), &BuildOptions{
		Root:       root,
		OutputPath: archivePath,
		AuxiliaryFiles: []string{
			auxiliaryPath,
			filepath.Join(auxiliaryDir, "absent.service"),
		},
	})
	require.NoError(t, err)

	names := archiveNames(t, archivePath)
	require.ElementsMatch(t, []string{"app.py", "config.yaml"}, names)
}

// TestBuild_RootNotADirectory rejects a file as the build root.
func TestBuild_RootNotADirectory(t *testing.T) {
	t.Parallel()

	filePath := filepath.Join(t.TempDir(), "not-a-dir")
	writeTestFile(t, filePath, "x")

	err := Build(context.Background(), &BuildOptions{
		Root:       filePath,
		OutputPath: filepath.Join(t.TempDir(), "out.zip"),
	})
	require.ErrorIs(t, err, errNotADirectory)
}

// TestReplaceAlias verifies the alias always tracks the newest archive and
// is replaced, never appended.
func TestReplaceAlias(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := filepath.Join(dir, "demo-1.zip")
	second := filepath.Join(dir, "demo-2.zip")
	alias := filepath.Join(dir, "demo-latest.zip")

	writeTestFile(t, first, "first bytes")
	writeTestFile(t, second, "second bytes")

	require.NoError(t, ReplaceAlias(first, alias))

	contents, err := os.ReadFile(alias)
	require.NoError(t, err)
	require.Equal(t, "first bytes", string(contents))

	require.NoError(t, ReplaceAlias(second, alias))

	contents, err = os.ReadFile(alias)
	require.NoError(t, err)
	require.Equal(t, "second bytes", string(contents))
}

// TestSidecarRoundtrip writes a sidecar and verifies it against the archive.
func TestSidecarRoundtrip(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "demo.zip")
	writeTestFile(t, archivePath, "archive bytes")

	sidecarPath, err := WriteSidecar(archivePath)
	require.NoError(t, err)
	require.Equal(t, archivePath+SidecarSuffix, sidecarPath)

	require.NoError(t, VerifySidecar(archivePath, sidecarPath))
}

// TestVerifySidecar_Mismatch surfaces ErrChecksumMismatch for a wrong hash.
func TestVerifySidecar_Mismatch(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "demo.zip")
	writeTestFile(t, archivePath, "archive bytes")

	sidecarPath := SidecarPath(archivePath)
	writeTestFile(t, sidecarPath, "deadbeef\n")

	err := VerifySidecar(archivePath, sidecarPath)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}
