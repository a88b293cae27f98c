package github

import (
	"context"
	"fmt"
	"net/http"
)

// Repository is a newly created remote repository.
type Repository struct {
	// HTMLURL is the human-facing repository page.
	HTMLURL string `json:"html_url"`
	// SSHURL is the push URL wired into the local repository's origin.
	SSHURL string `json:"ssh_url"`
}

// repositoryRequest is the create-repository payload.
type repositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

// CreateRepository creates a public repository under the configured account.
// An empty description gets a generated one.
func (c *Client) CreateRepository(ctx context.Context, name, description string) (*Repository, error) {
	if !c.HasToken() {
		return nil, ErrNoToken
	}

	if description == "" {
		description = fmt.Sprintf("Auto-created repository for %s", name)
	}

	payload := repositoryRequest{
		Name:        name,
		Description: description,
		Private:     false,
	}

	var repository Repository

	status, body, err := c.postJSON(ctx, c.apiBaseURL+"/user/repos", payload, &repository)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("create repository (%d): %s: %w", status, body, errUnexpectedStatus)
	}

	return &repository, nil
}
