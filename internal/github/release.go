package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Release is a remote, tag-keyed container for a published artifact.
type Release struct {
	// ID is the release identifier used for asset uploads.
	ID int64 `json:"id"`
	// TagName is the version tag the release is keyed by.
	TagName string `json:"tag_name"`
	// HTMLURL is the human-facing release page.
	HTMLURL string `json:"html_url"`
}

// releaseRequest is the create-release payload.
type releaseRequest struct {
	TagName    string `json:"tag_name"`
	Name       string `json:"name"`
	Body       string `json:"body"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// releaseBody renders the fixed templated body attached to every release.
func releaseBody(versionTag string) string {
	return fmt.Sprintf("Automatically built by fleet-updater\n\nBuild: %s", versionTag)
}

// EnsureRelease creates a release keyed by the version tag, or returns the
// existing one when the tag was already published. Re-publishing the same
// tag converges on the same release identity instead of failing.
func (c *Client) EnsureRelease(ctx context.Context, repoName, versionTag string) (*Release, error) {
	release, err := c.createRelease(ctx, repoName, versionTag)
	if err == nil {
		return release, nil
	}

	if !strings.Contains(err.Error(), errTagAlreadyExists.Error()) {
		return nil, err
	}

	return c.FindReleaseByTag(ctx, repoName, versionTag)
}

// createRelease attempts to create a non-draft, non-prerelease release.
func (c *Client) createRelease(ctx context.Context, repoName, versionTag string) (*Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", c.apiBaseURL, c.owner, repoName)

	payload := releaseRequest{
		TagName:    versionTag,
		Name:       fmt.Sprintf("%s %s", repoName, versionTag),
		Body:       releaseBody(versionTag),
		Draft:      false,
		Prerelease: false,
	}

	var release Release

	status, body, err := c.postJSON(ctx, endpoint, payload, &release)
	if err != nil {
		return nil, fmt.Errorf("create release: %w", err)
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return &release, nil
	case status == http.StatusUnprocessableEntity && bytes.Contains(body, []byte("already_exists")):
		return nil, fmt.Errorf("create release %s: %w", versionTag, errTagAlreadyExists)
	default:
		return nil, fmt.Errorf("create release (%d): %s: %w", status, body, errUnexpectedStatus)
	}
}

// ListReleases returns every release of the repository.
func (c *Client) ListReleases(ctx context.Context, repoName string) ([]Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases", c.apiBaseURL, c.owner, repoName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("list releases (%d): %w", status, errUnexpectedStatus)
	}

	var releases []Release
	if err = json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}

	return releases, nil
}

// FindReleaseByTag selects the release whose tag matches exactly.
func (c *Client) FindReleaseByTag(ctx context.Context, repoName, versionTag string) (*Release, error) {
	releases, err := c.ListReleases(ctx, repoName)
	if err != nil {
		return nil, err
	}

	for _, release := range releases {
		if release.TagName == versionTag {
			return &release, nil
		}
	}

	return nil, fmt.Errorf("tag %s: %w", versionTag, ErrReleaseNotFound)
}

// UploadReleaseAsset attaches the file at assetPath to the release, named
// by its base filename, with the provided content type.
func (c *Client) UploadReleaseAsset(ctx context.Context, repoName string, releaseID int64, assetPath, contentType string) error {
	contents, err := os.ReadFile(filepath.Clean(assetPath))
	if err != nil {
		return fmt.Errorf("read asset: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		c.uploadBaseURL, c.owner, repoName, releaseID, url.QueryEscape(filepath.Base(assetPath)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(contents))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", contentType)

	body, status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("upload asset: %w", err)
	}

	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("upload asset (%d): %s: %w", status, body, errUnexpectedStatus)
	}

	return nil
}
