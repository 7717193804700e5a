// Package wago provides a client for the addons.wago.io API: reference data
// (game patches, categories) and addon release uploads.
package wago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	// DefaultBaseURL is the addons.wago.io API base URL
	DefaultBaseURL = "https://addons.wago.io/api"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is the default User-Agent header
	DefaultUserAgent = "wagoctl/1.0"

	// maxErrorBody caps how much of an error response is kept in APIError.
	maxErrorBody = 4096
)

// HTTPClient defines the interface for HTTP operations
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the wago client
type Config struct {
	BaseURL    string
	APIKey     string // only required for uploads
	UserAgent  string
	Timeout    time.Duration
	HTTPClient HTTPClient
}

// DefaultConfig returns a default configuration without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		UserAgent:  DefaultUserAgent,
		Timeout:    DefaultTimeout,
		HTTPClient: newHTTPClient(DefaultTimeout),
	}
}

// newHTTPClient builds an HTTP client whose transport negotiates HTTP/2.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		transport.ForceAttemptHTTP2 = true
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Client is a synchronous wrapper around the addons.wago.io API.
// The underlying HTTP client is reused across calls.
type Client struct {
	config Config
}

// NewClient creates a new wago API client. Empty config fields fall back to
// the values of DefaultConfig.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = newHTTPClient(config.Timeout)
	}

	return &Client{config: config}
}

// HasAPIKey reports whether the client can upload.
func (c *Client) HasAPIKey() bool {
	return c.config.APIKey != ""
}

// GetGameVersions retrieves the patches currently accepted for each flavor.
func (c *Client) GetGameVersions(ctx context.Context) (*GameVersions, error) {
	var res gameDataResponse
	if err := c.getJSON(ctx, &res, "data", "game"); err != nil {
		return nil, err
	}
	return &res.Patches, nil
}

// GetAddonCategories retrieves the addon category list in API order.
func (c *Client) GetAddonCategories(ctx context.Context) ([]AddonCategory, error) {
	var categories []AddonCategory
	if err := c.getJSON(ctx, &categories, "data", "categories"); err != nil {
		return nil, err
	}
	return categories, nil
}

// ValidateMetadata fetches the current game versions and checks metadata
// against them. This always performs a network call; use
// GameVersions.Validate to check against a snapshot already in hand.
func (c *Client) ValidateMetadata(ctx context.Context, metadata *AddonMetadata) error {
	if metadata == nil {
		return ErrNilMetadata
	}

	versions, err := c.GetGameVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get supported game versions: %w", err)
	}

	return versions.Validate(metadata)
}

// UploadAddon uploads the release file at filePath with metadata to the
// project. It returns true when the API accepted the upload.
func (c *Client) UploadAddon(ctx context.Context, projectID, filePath string, metadata *AddonMetadata) (bool, error) {
	res, err := c.Upload(ctx, projectID, filePath, metadata)
	if err != nil {
		return false, err
	}
	return isSuccess(res.StatusCode), nil
}

// Upload is UploadAddon returning the decoded API response.
// Checks run in order: API key, project id, file (must exist and be a regular
// file), metadata validation (network),
// then the multipart POST.
func (c *Client) Upload(ctx context.Context, projectID, filePath string, metadata *AddonMetadata) (*UploadResponse, error) {
	if c.config.APIKey == "" {
		return nil, ErrAuthentication
	}
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}
	if !validProjectID(projectID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProjectID, projectID)
	}
	if metadata == nil {
		return nil, ErrNilMetadata
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
		}
		return nil, fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrFileNotFound, filePath)
	}

	if err := c.ValidateMetadata(ctx, metadata); err != nil {
		return nil, err
	}

	metadataJSON, err := metadata.JSON()
	if err != nil {
		return nil, err
	}

	endpoint, err := url.JoinPath(c.config.BaseURL, "projects", projectID, "version")
	if err != nil {
		return nil, fmt.Errorf("failed to construct API URL: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer func() { _ = file.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pw.CloseWithError(writeUploadBody(mw, file, filepath.Base(filePath), metadataJSON))
	}()
	// The writer goroutine must finish before the file is closed.
	defer func() {
		_ = pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !isSuccess(resp.StatusCode) {
		return nil, newAPIError(endpoint, resp)
	}

	res := &UploadResponse{}
	// The API does not always answer with JSON; a 2xx is accepted either way.
	if body, err := io.ReadAll(resp.Body); err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, res)
	}
	res.StatusCode = resp.StatusCode

	return res, nil
}

// writeUploadBody writes the file part followed by the metadata field.
func writeUploadBody(mw *multipart.Writer, file io.Reader, filename, metadataJSON string) error {
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stream file: %w", err)
	}
	if err := mw.WriteField("metadata", metadataJSON); err != nil {
		return fmt.Errorf("failed to write metadata field: %w", err)
	}
	return mw.Close()
}

// getJSON issues a GET to the endpoint built from path segments and decodes
// the JSON body into out.
func (c *Client) getJSON(ctx context.Context, out any, segments ...string) error {
	endpoint, err := url.JoinPath(c.config.BaseURL, segments...)
	if err != nil {
		return fmt.Errorf("failed to construct API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return &APIError{Endpoint: endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !isSuccess(resp.StatusCode) {
		return newAPIError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
}

func newAPIError(endpoint string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// validProjectID reports whether id is safe to use as a single path segment.
func validProjectID(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, "/\\?#")
}

// isSuccess treats every 2xx status as success.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
