// Package approval implements the maker-checker flow for destructive changes:
// a deletion is staged on its own branch and proposed through a pull request,
// and takes effect only when a reviewer merges it.
//
// No approval state is stored locally. A request is identified by its branch
// name and its lifecycle is read back from pull request events.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/audit"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// BranchPrefix starts every deletion branch name.
const BranchPrefix = "delete-template-"

const noComment = "No comment provided"

// Status is the lifecycle state of a deletion request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMerged    Status = "merged"
	StatusAbandoned Status = "abandoned"
)

// Repository is the subset of the remote repository the workflow drives.
type Repository interface {
	ReadFile(ctx context.Context, path, ref string) ([]byte, error)
	Commit(ctx context.Context, ref string, files map[string]string, message string) error
	CreateBranch(ctx context.Context, name, fromRef string) error
	CreatePullRequest(ctx context.Context, in bitbucket.PullRequestInput) (*bitbucket.PullRequestRef, error)
}

// Config 审批流程配置
type Config struct {
	DefaultBranch string
	IndexPath     string
}

// DeletionRequest is what the store hands over once it has located the record
// and computed the index without it.
type DeletionRequest struct {
	Header    index.Header
	Remaining []index.Header
	Actor     string
	Comment   string
}

// Request is a submitted deletion awaiting review.
type Request struct {
	Branch      string                   `json:"branch"`
	RecordID    string                   `json:"recordId"`
	RecordName  string                   `json:"recordName"`
	ContentPath string                   `json:"contentPath"`
	RequestedBy string                   `json:"requestedBy"`
	Comment     string                   `json:"comment"`
	PullRequest bitbucket.PullRequestRef `json:"pullRequest"`
	Status      Status                   `json:"status"`
	CreatedAt   time.Time                `json:"createdAt"`
}

// Workflow stages deletions on branches and finalizes them from pull request events.
type Workflow struct {
	repo   Repository
	cfg    Config
	logger *slog.Logger
	audit  audit.AuditLogger
	now    func() time.Time
}

// Option configures Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAuditLogger records submissions and finalizations.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(w *Workflow) {
		if a != nil {
			w.audit = a
		}
	}
}

// WithClock overrides the time source used for branch names.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorkflow creates a Workflow. Empty config values default to "main" and "metadata.json".
func NewWorkflow(repo Repository, cfg Config, opts ...Option) *Workflow {
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = "metadata.json"
	}
	w := &Workflow{
		repo:   repo,
		cfg:    cfg,
		logger: slog.Default(),
		audit:  audit.NopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "approval")
	return w
}

// Submit stages the deletion on a new branch in two commits (reduced index,
// then the emptied content file) and opens a pull request against the default
// branch. The default branch is not touched.
//
// A failure after the branch exists leaves the branch behind; it is logged
// with its name so it can be removed by hand.
func (w *Workflow) Submit(ctx context.Context, req DeletionRequest) (*Request, error) {
	h := req.Header
	if h.ID == "" {
		return nil, errors.New("approval: deletion request without record id")
	}

	createdAt := w.now().UTC()
	branch := BranchName(h.ID, createdAt)

	if err := w.repo.CreateBranch(ctx, branch, w.cfg.DefaultBranch); err != nil {
		metrics.RecordApproval("failed")
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}

	data, err := index.Encode(req.Remaining)
	if err != nil {
		metrics.RecordApproval("failed")
		return nil, err
	}
	msg := fmt.Sprintf("Delete template metadata: %s (ID: %s)", h.Name, h.ID)
	if err := w.repo.Commit(ctx, branch, map[string]string{w.cfg.IndexPath: string(data)}, msg); err != nil {
		return nil, w.abort(branch, "commit index", err)
	}

	if h.ContentPath != "" {
		msg = fmt.Sprintf("Delete template file: %s (ID: %s)", h.Name, h.ID)
		if err := w.repo.Commit(ctx, branch, map[string]string{h.ContentPath: ""}, msg); err != nil {
			return nil, w.abort(branch, "commit content removal", err)
		}
	}

	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		comment = noComment
	}
	pr, err := w.repo.CreatePullRequest(ctx, bitbucket.PullRequestInput{
		SourceBranch:      branch,
		DestinationBranch: w.cfg.DefaultBranch,
		Title:             "Delete Template: " + h.Name,
		Description:       w.describe(h, req.Actor, comment),
	})
	if err != nil {
		return nil, w.abort(branch, "open pull request", err)
	}

	r := &Request{
		Branch:      branch,
		RecordID:    h.ID,
		RecordName:  h.Name,
		ContentPath: h.ContentPath,
		RequestedBy: req.Actor,
		Comment:     comment,
		PullRequest: *pr,
		Status:      StatusPending,
		CreatedAt:   createdAt,
	}

	metrics.RecordApproval(string(StatusPending))
	w.logger.Info("deletion submitted for approval", "id", h.ID, "branch", branch, "pull_request", pr.URL, "actor", req.Actor)
	if err := w.audit.LogAction(req.Actor, audit.ActionRequestDeletion, h.ID, h,
		map[string]interface{}{"branch": branch, "pullRequestUrl": pr.URL}, comment); err != nil {
		w.logger.Warn("audit write failed", "id", h.ID, "error", err)
	}
	return r, nil
}

func (w *Workflow) abort(branch, step string, err error) error {
	metrics.RecordApproval("failed")
	w.logger.Error("deletion request failed, branch left behind", "branch", branch, "step", step, "error", err)
	return fmt.Errorf("%s on %s: %w", step, branch, err)
}

func (w *Workflow) describe(h index.Header, actor, comment string) string {
	return fmt.Sprintf("Deletion request for template ID %s.\n\nRequested by: %s\nComment: %s\n\n"+
		"This PR will:\n1. Remove the template entry from %s\n2. Delete the template file at %s",
		h.ID, actor, comment, w.cfg.IndexPath, h.ContentPath)
}

// BranchName builds the deletion branch name for id at t.
func BranchName(id string, t time.Time) string {
	return fmt.Sprintf("%s%s-%d", BranchPrefix, id, t.UnixMilli())
}

// ParseBranch recovers the record id and creation time from a deletion branch
// name. Ids may contain hyphens, so the timestamp is taken after the last one.
func ParseBranch(name string) (id string, createdAt time.Time, ok bool) {
	rest, found := strings.CutPrefix(name, BranchPrefix)
	if !found {
		return "", time.Time{}, false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 || i == len(rest)-1 {
		return "", time.Time{}, false
	}
	millis, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil || millis < 0 {
		return "", time.Time{}, false
	}
	return rest[:i], time.UnixMilli(millis).UTC(), true
}
