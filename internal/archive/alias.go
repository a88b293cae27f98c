package archive

import (
	"fmt"
	"os"
)

// ReplaceAlias points the latest alias at the provided archive.
// The alias is a hard link created under a temporary name and renamed over
// the previous alias, so a crash mid-replace never leaves the alias missing.
// Callers must only invoke this after the archive was fully written.
func ReplaceAlias(archivePath, aliasPath string) error {
	temporaryAlias := aliasPath + ".new"

	// Drop any leftover from an earlier interrupted replace.
	if _, err := os.Stat(temporaryAlias); err == nil {
		_ = os.Remove(temporaryAlias)
	}

	if err := os.Link(archivePath, temporaryAlias); err != nil {
		return fmt.Errorf("link alias: %w", err)
	}

	if err := os.Rename(temporaryAlias, aliasPath); err != nil {
		_ = os.Remove(temporaryAlias)

		return fmt.Errorf("replace alias: %w", err)
	}

	return nil
}
