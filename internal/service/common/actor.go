//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/mattcodi/fleet-updater/internal/domain/deployment"
)

// DetectActor gathers host and user information for the apply audit trail.
func DetectActor() (*deployment.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &deployment.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
