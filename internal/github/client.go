package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	// TokenEnvVar names the environment variable holding the API credential.
	// Its absence disables publishing and repository creation, nothing else.
	TokenEnvVar = "GITHUB_TOKEN"

	// defaultAPIBaseURL is the REST API endpoint.
	defaultAPIBaseURL = "https://api.github.com"

	// defaultUploadBaseURL is the release-asset upload endpoint.
	defaultUploadBaseURL = "https://uploads.github.com"

	// acceptHeader is the API version accepted on every request.
	acceptHeader = "application/vnd.github+json"

	// defaultCallTimeout bounds every API call.
	defaultCallTimeout = 30 * time.Second
)

var (
	// ErrNoToken indicates the credential is missing for a mandatory remote action.
	ErrNoToken = errors.New("no API token configured")
	// ErrTimeout indicates a request exceeded its bounded wait.
	ErrTimeout = errors.New("request timed out")
	// ErrReleaseNotFound indicates no release matched the requested tag.
	ErrReleaseNotFound = errors.New("release not found")
	// errTagAlreadyExists marks the idempotent re-publish path internally.
	errTagAlreadyExists = errors.New("release tag already exists")
	// errUnexpectedStatus is returned for any other non-success response.
	errUnexpectedStatus = errors.New("unexpected http status")
)

// Client is a minimal GitHub API client covering the calls this system
// consumes: create release, list releases, upload release asset, create
// repository. All calls are authenticated with a bearer token and bounded
// by a timeout.
type Client struct {
	httpClient    *http.Client
	token         string
	owner         string
	apiBaseURL    string
	uploadBaseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithBaseURLs overrides the API and upload endpoints (used by tests).
func WithBaseURLs(apiBaseURL, uploadBaseURL string) Option {
	return func(c *Client) {
		c.apiBaseURL = apiBaseURL
		c.uploadBaseURL = uploadBaseURL
	}
}

// TokenFromEnvironment reads the API credential from the process environment.
func TokenFromEnvironment() string {
	return os.Getenv(TokenEnvVar)
}

// NewClient creates a client for the provided account and token.
func NewClient(owner, token string, opts ...Option) *Client {
	client := &Client{
		httpClient:    &http.Client{Timeout: defaultCallTimeout},
		token:         token,
		owner:         owner,
		apiBaseURL:    defaultAPIBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// HasToken reports whether a credential is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// do sends the request with auth headers and returns the response body for
// 2xx statuses. Timeouts surface as ErrTimeout so callers can distinguish
// them from other failures.
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", acceptHeader)

	response, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, 0, fmt.Errorf("%s: %w", req.URL, ErrTimeout)
		}

		return nil, 0, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, response.StatusCode, err
	}

	return body, response.StatusCode, nil
}

// postJSON sends a JSON payload and decodes a JSON response into result.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload, result any) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return status, body, err
	}

	if status >= http.StatusOK && status < http.StatusMultipleChoices && result != nil {
		if err = json.Unmarshal(body, result); err != nil {
			return status, body, fmt.Errorf("decode response: %w", err)
		}
	}

	return status, body, nil
}
