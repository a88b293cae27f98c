package distributor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/mattcodi/fleet-updater/internal/logger"
)

const (
	// markerFilename marks that a one-shot apply is running right now to
	// avoid parallel updater processes on the same host.
	markerFilename = "fleet-updater-apply-marker.bin"

	// updaterExecutable is the process name killed during stale-marker recovery.
	updaterExecutable = "fleet-updater"

	// markerLifetime is the period after which a leftover marker is
	// considered stale and recovered.
	markerLifetime = 5 * time.Minute
)

// MarkerPath returns the location of the apply marker file.
func MarkerPath() string {
	return filepath.Join(os.TempDir(), markerFilename)
}

// IsApplyRunningNow checks presence of the marker file and attempts
// recovery if it looks stale.
func IsApplyRunningNow(ctx context.Context) bool {
	fileInfo, err := os.Stat(MarkerPath())
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The apply marker is too old, attempting cleanup")

		if err = terminateProcessByName(updaterExecutable); err != nil {
			return true
		}

		if err = os.Remove(MarkerPath()); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	logger.Infof(ctx, "Unable to read apply marker: %v", err)

	return false
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
