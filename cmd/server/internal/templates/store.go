// Package templates is the record store: it maps template operations onto the
// repository's index file and per-template content files.
//
// Every operation reads the index fresh from the default branch and every
// mutation rewrites the whole index. There is no locking and no
// compare-and-swap; two concurrent mutations both read the same index and the
// later commit wins.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/audit"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
	"github.com/Jianwei07/prompt-temp-v1/pkg/metrics"
)

// DefaultActor is used when neither the caller nor the configuration names one.
const DefaultActor = "System"

// Repository is the remote storage the store reads and commits to.
type Repository interface {
	ReadFile(ctx context.Context, path, ref string) ([]byte, error)
	Commit(ctx context.Context, ref string, files map[string]string, message string) error
	ListCommits(ctx context.Context, path, ref string, limit int) ([]bitbucket.Commit, error)
}

// Approver stages deletions for review.
type Approver interface {
	Submit(ctx context.Context, req approval.DeletionRequest) (*approval.Request, error)
}

// StoreConfig 存储配置
type StoreConfig struct {
	DefaultBranch   string
	IndexPath       string
	RequireApproval bool
	FallbackActor   string
	ListConcurrency int
	HistoryEnabled  bool
	HistoryLimit    int
}

// Store implements the template operations.
type Store struct {
	repo     Repository
	cfg      StoreConfig
	approver Approver
	audit    audit.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures Store.
type Option func(*Store)

// WithApprover sets the workflow used when deletions require approval.
func WithApprover(a Approver) Option {
	return func(s *Store) { s.approver = a }
}

// WithAuditLogger records successful mutations.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Store) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore creates a Store over repo.
func NewStore(repo Repository, cfg StoreConfig, opts ...Option) *Store {
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.IndexPath == "" {
		cfg.IndexPath = "metadata.json"
	}
	if cfg.ListConcurrency <= 0 {
		cfg.ListConcurrency = 8
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	s := &Store{
		repo:   repo,
		cfg:    cfg,
		audit:  audit.NopLogger{},
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "template_store")
	return s
}

// RequiresApproval reports whether Delete goes through the approval workflow.
func (s *Store) RequiresApproval() bool {
	return s.cfg.RequireApproval
}

// List returns every index entry in index order, without content.
func (s *Store) List(ctx context.Context) (out []Template, err error) {
	defer func() { recordOp("list", err) }()

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]Template, 0, len(headers))
	for _, h := range headers {
		out = append(out, fromHeader(h))
	}
	return out, nil
}

// ListWithContent is List plus one content fetch per entry, run with bounded
// concurrency. An entry whose content cannot be fetched is returned with
// empty content fields rather than failing the list.
func (s *Store) ListWithContent(ctx context.Context) (out []Template, err error) {
	defer func() { recordOp("list", err) }()

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]Template, len(headers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ListConcurrency)
	for i, h := range headers {
		out[i] = fromHeader(h)
		if h.ContentPath == "" {
			continue
		}
		g.Go(func() error {
			c, err := s.readContent(gctx, h.ContentPath)
			if err != nil {
				metrics.RecordDegradedRead()
				s.logger.Warn("content unavailable, returning header only", "id", h.ID, "path", h.ContentPath, "error", err)
				return nil
			}
			out[i].applyContent(c)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the record with its content.
func (s *Store) Get(ctx context.Context, id string) (t *Template, err error) {
	defer func() { recordOp("get", err) }()

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	i := index.Find(headers, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	h := headers[i]
	if h.ContentPath == "" {
		return nil, fmt.Errorf("%w: %s has no content path", ErrNotFound, id)
	}

	c, err := s.readContent(ctx, h.ContentPath)
	if err != nil {
		if bitbucket.IsNotFound(err) {
			return nil, fmt.Errorf("%w: content file %s missing", ErrNotFound, h.ContentPath)
		}
		return nil, err
	}
	tpl := fromHeader(h)
	tpl.applyContent(c)
	return &tpl, nil
}

// Create validates fields, assigns a new id and commits the index and the
// new content file together. The returned record is what was written.
func (s *Store) Create(ctx context.Context, f Fields, actor string) (t *Template, err error) {
	defer func() { recordOp("create", err) }()

	f = normalize(f)
	if err := validateCreate(f); err != nil {
		return nil, err
	}

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	path := ContentPath(f.Department, f.AppCode, f.Name)
	if owner := ownerOf(headers, path, ""); owner != "" {
		return nil, fmt.Errorf("%w: %s already used by %s", ErrConflict, path, owner)
	}

	actor = s.actor(actor)
	ts := s.timestamp()
	h := index.Header{
		ID:          s.newID(),
		Department:  f.Department,
		AppCode:     f.AppCode,
		Name:        f.Name,
		ContentPath: path,
		Version:     index.DefaultVersion,
		CreatedAt:   ts,
		CreatedBy:   actor,
		UpdatedAt:   ts,
		UpdatedBy:   actor,
	}
	headers = append(headers, h)

	content := contentOf(f)
	msg := fmt.Sprintf("Creating new template: %s in %s/%s", f.Name, f.Department, f.AppCode)
	if err := s.commit(ctx, headers, map[string]*index.Content{path: &content}, msg); err != nil {
		return nil, err
	}

	tpl := fromHeader(h)
	tpl.applyContent(&content)
	s.logger.Info("template created", "id", h.ID, "path", path, "actor", actor)
	s.auditLog(actor, audit.ActionCreateTemplate, h.ID, nil, h, path)
	return &tpl, nil
}

// Update rewrites the header in place and replaces the content file. Blank
// name, department or appCode keep their current values. When the derived
// path changes, the old content file is removed in the same commit.
func (s *Store) Update(ctx context.Context, id string, f Fields, actor string) (t *Template, err error) {
	defer func() { recordOp("update", err) }()

	f = normalize(f)
	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	i := index.Find(headers, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	before := headers[i]
	h := before
	if f.Name != "" {
		h.Name = f.Name
	}
	if f.Department != "" {
		h.Department = f.Department
	}
	if f.AppCode != "" {
		h.AppCode = f.AppCode
	}
	if err := validatePathSegments(f); err != nil {
		return nil, err
	}
	path := ContentPath(h.Department, h.AppCode, h.Name)
	if owner := ownerOf(headers, path, id); owner != "" {
		return nil, fmt.Errorf("%w: %s already used by %s", ErrConflict, path, owner)
	}

	actor = s.actor(actor)
	h.ContentPath = path
	h.Version = index.DefaultVersion
	h.UpdatedAt = s.timestamp()
	h.UpdatedBy = actor
	headers[i] = h

	content := contentOf(f)
	files := map[string]*index.Content{path: &content}
	if before.ContentPath != "" && before.ContentPath != path {
		files[before.ContentPath] = nil
	}
	if err := s.commit(ctx, headers, files, "Update template "+id); err != nil {
		return nil, err
	}

	tpl := fromHeader(h)
	tpl.applyContent(&content)
	s.logger.Info("template updated", "id", id, "path", path, "actor", actor)
	s.auditLog(actor, audit.ActionUpdateTemplate, id, before, h, path)
	return &tpl, nil
}

// RepositoryStructure lists the sorted distinct departments and the distinct
// (department, appCode) pairs in first-seen order.
func (s *Store) RepositoryStructure(ctx context.Context) (st *Structure, err error) {
	defer func() { recordOp("structure", err) }()

	headers, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return structureOf(headers), nil
}

func (s *Store) readIndex(ctx context.Context) ([]index.Header, error) {
	data, err := s.repo.ReadFile(ctx, s.cfg.IndexPath, s.cfg.DefaultBranch)
	if err != nil {
		if bitbucket.IsNotFound(err) {
			return []index.Header{}, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	return index.Decode(data)
}

func (s *Store) readContent(ctx context.Context, path string) (*index.Content, error) {
	data, err := s.repo.ReadFile(ctx, path, s.cfg.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("read content %s: %w", path, err)
	}
	return index.DecodeContent(data)
}

// commit writes the index plus the given content files in one commit to the
// default branch. A nil content removes the path.
func (s *Store) commit(ctx context.Context, headers []index.Header, contents map[string]*index.Content, message string) error {
	data, err := index.Encode(headers)
	if err != nil {
		return err
	}
	files := map[string]string{s.cfg.IndexPath: string(data)}
	for path, c := range contents {
		if c == nil {
			files[path] = ""
			continue
		}
		body, err := index.EncodeContent(*c)
		if err != nil {
			return err
		}
		files[path] = string(body)
	}
	if err := s.repo.Commit(ctx, s.cfg.DefaultBranch, files, message); err != nil {
		return fmt.Errorf("commit %q: %w", message, err)
	}
	return nil
}

func (s *Store) actor(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	if s.cfg.FallbackActor != "" {
		return s.cfg.FallbackActor
	}
	return DefaultActor
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) auditLog(actor string, action audit.AuditAction, id string, before, after interface{}, details string) {
	if err := s.audit.LogAction(actor, action, id, before, after, details); err != nil {
		s.logger.Warn("audit write failed", "id", id, "action", action, "error", err)
	}
}

func normalize(f Fields) Fields {
	f.Name = strings.TrimSpace(f.Name)
	f.Department = strings.TrimSpace(f.Department)
	f.AppCode = strings.TrimSpace(f.AppCode)
	return f
}

// validateCreate checks required fields in a fixed order.
func validateCreate(f Fields) error {
	required := []struct {
		field string
		value string
	}{
		{"name", f.Name},
		{"content", f.Content},
		{"department", f.Department},
		{"appCode", f.AppCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field}
		}
	}
	return validatePathSegments(f)
}

// validatePathSegments rejects department or appCode values that would add
// directory levels to the derived content path.
func validatePathSegments(f Fields) error {
	if strings.Contains(f.Department, "/") {
		return &ValidationError{Field: "department", Message: "must not contain '/'"}
	}
	if strings.Contains(f.AppCode, "/") {
		return &ValidationError{Field: "appCode", Message: "must not contain '/'"}
	}
	return nil
}

// ownerOf returns the id of a record other than self that already uses path.
func ownerOf(headers []index.Header, path, self string) string {
	for _, h := range headers {
		if h.ContentPath == path && h.ID != self {
			return h.ID
		}
	}
	return ""
}

func structureOf(headers []index.Header) *Structure {
	st := &Structure{Departments: []string{}, AppCodes: []AppCodePair{}}
	seenDept := map[string]bool{}
	seenPair := map[AppCodePair]bool{}
	for _, h := range headers {
		if h.Department == "" {
			continue
		}
		if !seenDept[h.Department] {
			seenDept[h.Department] = true
			st.Departments = append(st.Departments, h.Department)
		}
		if h.AppCode == "" {
			continue
		}
		p := AppCodePair{Department: h.Department, AppCode: h.AppCode}
		if !seenPair[p] {
			seenPair[p] = true
			st.AppCodes = append(st.AppCodes, p)
		}
	}
	sort.Strings(st.Departments)
	return st
}

func recordOp(op string, err error) {
	metrics.RecordTemplateOperation(op, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, bitbucket.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
