package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Pull request states used by MemoryClient, matching the host's vocabulary.
const (
	StateOpen     = "OPEN"
	StateMerged   = "MERGED"
	StateDeclined = "DECLINED"
)

// MemoryCommit is one commit recorded by MemoryClient.
type MemoryCommit struct {
	Hash    string
	Ref     string
	Message string
	Files   map[string]string
	Date    time.Time
}

// MemoryPullRequest is a pull request held by MemoryClient.
type MemoryPullRequest struct {
	PullRequestRef
	PullRequestInput
	State string
}

// MemoryClient is an in-process repository with the same operations as
// Client. It backs BITBUCKET_MODE=memory local runs and tests. Merges replay
// the source branch's commits onto the destination.
type MemoryClient struct {
	mu            sync.Mutex
	defaultBranch string
	branches      map[string]map[string]string
	commits       []MemoryCommit
	pulls         map[int]*MemoryPullRequest
	nextPR        int
	now           func() time.Time
}

// NewMemoryClient creates an empty repository whose only branch is defaultBranch.
func NewMemoryClient(defaultBranch string) *MemoryClient {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return &MemoryClient{
		defaultBranch: defaultBranch,
		branches:      map[string]map[string]string{defaultBranch: {}},
		pulls:         map[int]*MemoryPullRequest{},
		nextPR:        1,
		now:           time.Now,
	}
}

// Seed writes path on the default branch without recording a commit.
func (m *MemoryClient) Seed(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[m.defaultBranch][path] = content
}

// ReadFile implements the repository read.
func (m *MemoryClient) ReadFile(_ context.Context, path, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.branches[ref]
	if !ok {
		return nil, newAPIError("read", http.StatusNotFound, "branch "+ref+" not found", ErrNotFound)
	}
	content, ok := files[path]
	if !ok {
		return nil, newAPIError("read", http.StatusNotFound, "no such file "+path, ErrNotFound)
	}
	return []byte(content), nil
}

// Commit applies files to ref; an empty value removes the path. A missing
// branch is created from the default branch, as the host does.
func (m *MemoryClient) Commit(_ context.Context, ref string, files map[string]string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[ref]; !ok {
		m.branches[ref] = copyFiles(m.branches[m.defaultBranch])
	}
	m.applyLocked(ref, files)

	snapshot := make(map[string]string, len(files))
	for k, v := range files {
		snapshot[k] = v
	}
	m.commits = append(m.commits, MemoryCommit{
		Hash:    fmt.Sprintf("%040x", len(m.commits)+1),
		Ref:     ref,
		Message: message,
		Files:   snapshot,
		Date:    m.now().UTC(),
	})
	return nil
}

// CreateBranch implements branch creation.
func (m *MemoryClient) CreateBranch(_ context.Context, name, fromRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[name]; ok {
		return newAPIError("create_branch", http.StatusConflict, "branch "+name+" already exists", ErrConflict)
	}
	src, ok := m.branches[fromRef]
	if !ok {
		return newAPIError("create_branch", http.StatusNotFound, "ref "+fromRef+" not found", ErrNotFound)
	}
	m.branches[name] = copyFiles(src)
	return nil
}

// CreatePullRequest implements pull request creation.
func (m *MemoryClient) CreatePullRequest(_ context.Context, in PullRequestInput) (*PullRequestRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[in.SourceBranch]; !ok {
		return nil, newAPIError("create_pull_request", http.StatusBadRequest, "source branch "+in.SourceBranch+" not found", ErrHost)
	}
	id := m.nextPR
	m.nextPR++
	pr := &MemoryPullRequest{
		PullRequestRef:   PullRequestRef{ID: id, URL: fmt.Sprintf("memory://pull-requests/%d", id)},
		PullRequestInput: in,
		State:            StateOpen,
	}
	m.pulls[id] = pr
	ref := pr.PullRequestRef
	return &ref, nil
}

// ListCommits returns commits on ref touching path, newest first.
func (m *MemoryClient) ListCommits(_ context.Context, path, ref string, limit int) ([]Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branches[ref]; !ok {
		return nil, newAPIError("list_commits", http.StatusNotFound, "ref "+ref+" not found", ErrNotFound)
	}
	var out []Commit
	for i := len(m.commits) - 1; i >= 0; i-- {
		c := m.commits[i]
		if c.Ref != ref {
			continue
		}
		if _, touched := c.Files[path]; !touched {
			continue
		}
		out = append(out, Commit{Hash: c.Hash, Message: c.Message, Author: "memory", Date: c.Date})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MergePullRequest replays the source branch's commits onto the destination,
// marks the pull request merged and removes the source branch.
func (m *MemoryClient) MergePullRequest(id int) (*MemoryPullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.pulls[id]
	if !ok {
		return nil, newAPIError("merge", http.StatusNotFound, fmt.Sprintf("pull request %d not found", id), ErrNotFound)
	}
	if pr.State != StateOpen {
		return nil, newAPIError("merge", http.StatusConflict, fmt.Sprintf("pull request %d is %s", id, pr.State), ErrConflict)
	}
	if _, ok := m.branches[pr.DestinationBranch]; !ok {
		return nil, newAPIError("merge", http.StatusNotFound, "branch "+pr.DestinationBranch+" not found", ErrNotFound)
	}
	for _, c := range m.commits {
		if c.Ref == pr.SourceBranch {
			m.applyLocked(pr.DestinationBranch, c.Files)
		}
	}
	pr.State = StateMerged
	delete(m.branches, pr.SourceBranch)
	out := *pr
	return &out, nil
}

// DeclinePullRequest marks the pull request declined. The branch is kept.
func (m *MemoryClient) DeclinePullRequest(id int) (*MemoryPullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.pulls[id]
	if !ok {
		return nil, newAPIError("decline", http.StatusNotFound, fmt.Sprintf("pull request %d not found", id), ErrNotFound)
	}
	pr.State = StateDeclined
	out := *pr
	return &out, nil
}

// PullRequests returns a snapshot of all pull requests ordered by id.
func (m *MemoryClient) PullRequests() []MemoryPullRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MemoryPullRequest, 0, len(m.pulls))
	for _, pr := range m.pulls {
		out = append(out, *pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Commits returns a snapshot of the commit log, oldest first.
func (m *MemoryClient) Commits() []MemoryCommit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MemoryCommit(nil), m.commits...)
}

// HasBranch reports whether name exists.
func (m *MemoryClient) HasBranch(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.branches[name]
	return ok
}

func (m *MemoryClient) applyLocked(ref string, files map[string]string) {
	target := m.branches[ref]
	for path, content := range files {
		if content == "" {
			delete(target, path)
			continue
		}
		target[path] = content
	}
}

func copyFiles(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
