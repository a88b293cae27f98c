package archive

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Ensure SHA256 is available for checksum calculation.
	_ "crypto/sha256"
)

const (
	// SidecarSuffix is appended to an archive path to name its checksum sidecar.
	SidecarSuffix = ".sha256"

	// DefaultChecksumFunction is used to calculate archive content hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA256
)

var (
	// ErrChecksumMismatch is returned when a sidecar hash does not match the archive.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// errHashUnavailable is returned when the checksum function is not linked in.
	errHashUnavailable = errors.New("hash function unavailable")
)

// SidecarPath returns the conventional sidecar location for an archive.
func SidecarPath(archivePath string) string {
	return archivePath + SidecarSuffix
}

// FileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := DefaultChecksumFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// WriteSidecar computes the archive checksum and writes it, hex-encoded,
// to the conventional sidecar path. It returns the sidecar path.
func WriteSidecar(archivePath string) (string, error) {
	checksum, err := FileChecksum(archivePath)
	if err != nil {
		return "", err
	}

	sidecarPath := SidecarPath(archivePath)
	if err = os.WriteFile(sidecarPath, []byte(hex.EncodeToString(checksum)+"\n"), 0o644); err != nil { //nolint:gosec // Sidecar is world-readable on purpose.
		return "", fmt.Errorf("write sidecar: %w", err)
	}

	return sidecarPath, nil
}

// VerifySidecar compares the archive's content hash against the hex hash in
// the sidecar file. It returns ErrChecksumMismatch on any difference.
func VerifySidecar(archivePath, sidecarPath string) error {
	contents, err := os.ReadFile(filepath.Clean(sidecarPath))
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}

	expected, err := hex.DecodeString(strings.TrimSpace(string(contents)))
	if err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	actual, err := FileChecksum(archivePath)
	if err != nil {
		return err
	}

	if !bytes.Equal(expected, actual) {
		return fmt.Errorf("%s: %w", archivePath, ErrChecksumMismatch)
	}

	return nil
}
