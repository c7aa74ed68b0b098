// Package bitbucket is a thin client for the Bitbucket Cloud 2.0 repository
// API: reading files at a ref, multi-file commits, branches and pull requests.
// It carries no business logic.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// DefaultBaseURL is the public Bitbucket Cloud API root.
const DefaultBaseURL = "https://api.bitbucket.org/2.0"

// maxBodySize limits response bodies read from the host (10 MB).
const maxBodySize = 10 << 20

// maxMessageLen truncates host error bodies kept in APIError.
const maxMessageLen = 512

// Config holds the repository coordinates and credentials.
// AccessToken, when set, takes precedence over Username/AppPassword.
type Config struct {
	BaseURL     string
	Workspace   string
	RepoSlug    string
	Username    string
	AppPassword string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to one repository on the host.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient validates cfg and creates a Client. The request timeout defaults to 30s.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("bitbucket: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Workspace == "" || cfg.RepoSlug == "" {
		return nil, errors.New("bitbucket: workspace and repository slug are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadFile returns the raw content of path at ref.
func (c *Client) ReadFile(ctx context.Context, path, ref string) ([]byte, error) {
	u := c.repoURL("src", url.PathEscape(ref), escapePath(path))
	return c.do(ctx, "read", http.MethodGet, u, nil, "")
}

// Commit writes all files to ref in a single commit. An empty content value
// deletes the path. The host may apply a failed commit partially; such a
// failure surfaces as ErrHost and the outcome is unknown.
func (c *Client) Commit(ctx context.Context, ref string, files map[string]string, message string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("message", message); err != nil {
		return fmt.Errorf("bitbucket: build commit form: %w", err)
	}
	if err := w.WriteField("branch", ref); err != nil {
		return fmt.Errorf("bitbucket: build commit form: %w", err)
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		part, err := w.CreateFormFile(p, p)
		if err != nil {
			return fmt.Errorf("bitbucket: build commit form: %w", err)
		}
		if _, err := io.WriteString(part, files[p]); err != nil {
			return fmt.Errorf("bitbucket: build commit form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("bitbucket: build commit form: %w", err)
	}

	_, err := c.do(ctx, "commit", http.MethodPost, c.repoURL("src"), &body, w.FormDataContentType())
	return err
}

// CreateBranch creates name pointing at fromRef. Fails with ErrConflict when
// the branch already exists.
func (c *Client) CreateBranch(ctx context.Context, name, fromRef string) error {
	payload := map[string]interface{}{
		"name":   name,
		"target": map[string]string{"hash": fromRef},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bitbucket: encode branch request: %w", err)
	}
	_, err = c.do(ctx, "create_branch", http.MethodPost, c.repoURL("refs", "branches"), bytes.NewReader(data), "application/json")
	return err
}

// CreatePullRequest opens a pull request and returns its id and browsable URL.
func (c *Client) CreatePullRequest(ctx context.Context, in PullRequestInput) (*PullRequestRef, error) {
	payload := map[string]interface{}{
		"title":               in.Title,
		"description":         in.Description,
		"source":              map[string]interface{}{"branch": map[string]string{"name": in.SourceBranch}},
		"destination":         map[string]interface{}{"branch": map[string]string{"name": in.DestinationBranch}},
		"close_source_branch": true,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bitbucket: encode pull request: %w", err)
	}
	respBody, err := c.do(ctx, "create_pull_request", http.MethodPost, c.repoURL("pullrequests"), bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID    int `json:"id"`
		Links struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"links"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, newAPIError("create_pull_request", http.StatusOK, "unparseable response: "+err.Error(), ErrHost)
	}
	return &PullRequestRef{ID: resp.ID, URL: resp.Links.HTML.Href}, nil
}

// ListCommits returns up to limit commits on ref that touched path, newest first.
func (c *Client) ListCommits(ctx context.Context, path, ref string, limit int) ([]Commit, error) {
	q := url.Values{}
	q.Set("path", strings.TrimLeft(path, "/"))
	if limit > 0 {
		q.Set("pagelen", strconv.Itoa(limit))
	}
	u := c.repoURL("commits", url.PathEscape(ref)) + "?" + q.Encode()
	respBody, err := c.do(ctx, "list_commits", http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Values []struct {
			Hash    string    `json:"hash"`
			Message string    `json:"message"`
			Date    time.Time `json:"date"`
			Author  struct {
				Raw  string `json:"raw"`
				User *struct {
					DisplayName string `json:"display_name"`
				} `json:"user"`
			} `json:"author"`
		} `json:"values"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, newAPIError("list_commits", http.StatusOK, "unparseable response: "+err.Error(), ErrHost)
	}

	commits := make([]Commit, 0, len(resp.Values))
	for _, v := range resp.Values {
		author := v.Author.Raw
		if v.Author.User != nil && v.Author.User.DisplayName != "" {
			author = v.Author.User.DisplayName
		}
		commits = append(commits, Commit{
			Hash:    v.Hash,
			Message: strings.TrimSpace(v.Message),
			Author:  author,
			Date:    v.Date,
		})
		if limit > 0 && len(commits) == limit {
			break
		}
	}
	return commits, nil
}

func (c *Client) repoURL(parts ...string) string {
	base := fmt.Sprintf("%s/repositories/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Workspace), url.PathEscape(c.cfg.RepoSlug))
	if len(parts) == 0 {
		return base
	}
	return base + "/" + strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, op, method, u string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, newAPIError(op, 0, err.Error(), ErrHost)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	} else if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.AppPassword)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordRemoteDuration(op, time.Since(start).Seconds())
	if err != nil {
		metrics.RecordRemoteRequest(op, "host_error")
		c.logger.Warn("bitbucket request failed", "op", op, "method", method, "error", err)
		return nil, newAPIError(op, 0, err.Error(), ErrHost)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.RecordRemoteRequest(op, "host_error")
		return nil, newAPIError(op, resp.StatusCode, "read body: "+err.Error(), ErrHost)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.RecordRemoteRequest(op, "ok")
		c.logger.Debug("bitbucket request", "op", op, "method", method, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
		return data, nil
	}

	message := errorMessage(data)
	class := classify(resp.StatusCode, message)
	metrics.RecordRemoteRequest(op, statusLabel(class))
	if class != ErrNotFound {
		c.logger.Warn("bitbucket request rejected", "op", op, "method", method, "status", resp.StatusCode, "message", message)
	}
	return nil, newAPIError(op, resp.StatusCode, message, class)
}

func classify(status int, message string) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailure
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "already exists"):
		return ErrConflict
	default:
		return ErrHost
	}
}

func statusLabel(class error) string {
	switch class {
	case ErrNotFound:
		return "not_found"
	case ErrAuthFailure:
		return "auth_failure"
	case ErrConflict:
		return "conflict"
	default:
		return "host_error"
	}
}

// errorMessage extracts error.message from a Bitbucket error document, or
// falls back to the truncated raw body.
func errorMessage(body []byte) string {
	var doc struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err == nil && doc.Error.Message != "" {
		return doc.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	return msg
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
