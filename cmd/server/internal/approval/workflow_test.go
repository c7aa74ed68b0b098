package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/index"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func seededRepo(t *testing.T) (*bitbucket.MemoryClient, []index.Header) {
	t.Helper()
	headers := []index.Header{
		{ID: "id-1", Department: "CS", AppCode: "APP1", Name: "Greeting", ContentPath: "CS/APP1/Greeting.json", Version: index.DefaultVersion},
		{ID: "id-2", Department: "CS", AppCode: "APP1", Name: "Greeting Two", ContentPath: "CS/APP1/Greeting-Two.json", Version: index.DefaultVersion},
	}
	data, err := index.Encode(headers)
	require.NoError(t, err)

	repo := bitbucket.NewMemoryClient("main")
	repo.Seed("metadata.json", string(data))
	repo.Seed("CS/APP1/Greeting.json", `{"Main Prompt Content":"Hello"}`)
	repo.Seed("CS/APP1/Greeting-Two.json", `{"Main Prompt Content":"Hi"}`)
	return repo, headers
}

func newWorkflow(repo Repository) *Workflow {
	return NewWorkflow(repo, Config{DefaultBranch: "main", IndexPath: "metadata.json"},
		WithClock(func() time.Time { return fixedNow }))
}

func TestSubmit_StagesDeletionOnBranch(t *testing.T) {
	repo, headers := seededRepo(t)
	w := newWorkflow(repo)

	req, err := w.Submit(context.Background(), DeletionRequest{
		Header:    headers[0],
		Remaining: index.Without(headers, 0),
		Actor:     "alice",
		Comment:   "obsolete",
	})
	require.NoError(t, err)

	wantBranch := "delete-template-id-1-1714557600000"
	assert.Equal(t, wantBranch, req.Branch)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "id-1", req.RecordID)
	assert.Equal(t, "alice", req.RequestedBy)
	assert.Equal(t, "memory://pull-requests/1", req.PullRequest.URL)

	commits := repo.Commits()
	require.Len(t, commits, 2)
	assert.Equal(t, wantBranch, commits[0].Ref)
	assert.Equal(t, "Delete template metadata: Greeting (ID: id-1)", commits[0].Message)
	assert.Contains(t, commits[0].Files, "metadata.json")
	assert.Equal(t, "Delete template file: Greeting (ID: id-1)", commits[1].Message)
	assert.Equal(t, map[string]string{"CS/APP1/Greeting.json": ""}, commits[1].Files)

	prs := repo.PullRequests()
	require.Len(t, prs, 1)
	assert.Equal(t, "Delete Template: Greeting", prs[0].Title)
	assert.Equal(t, "main", prs[0].DestinationBranch)
	assert.Equal(t, "Deletion request for template ID id-1.\n\nRequested by: alice\nComment: obsolete\n\n"+
		"This PR will:\n1. Remove the template entry from metadata.json\n2. Delete the template file at CS/APP1/Greeting.json",
		prs[0].Description)

	// default branch untouched
	data, err := repo.ReadFile(context.Background(), "metadata.json", "main")
	require.NoError(t, err)
	onMain, err := index.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, headers, onMain)

	// staged branch no longer lists the record or its file
	data, err = repo.ReadFile(context.Background(), "metadata.json", wantBranch)
	require.NoError(t, err)
	staged, err := index.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, -1, index.Find(staged, "id-1"))
	_, err = repo.ReadFile(context.Background(), "CS/APP1/Greeting.json", wantBranch)
	assert.True(t, bitbucket.IsNotFound(err))
}

func TestSubmit_CustomIndexPath(t *testing.T) {
	repo, headers := seededRepo(t)
	data, err := index.Encode(headers)
	require.NoError(t, err)
	repo.Seed("prompts/index.json", string(data))
	w := NewWorkflow(repo, Config{DefaultBranch: "main", IndexPath: "prompts/index.json"},
		WithClock(func() time.Time { return fixedNow }))

	_, err = w.Submit(context.Background(), DeletionRequest{Header: headers[0], Remaining: index.Without(headers, 0), Actor: "alice"})
	require.NoError(t, err)

	assert.Contains(t, repo.Commits()[0].Files, "prompts/index.json")
	desc := repo.PullRequests()[0].Description
	assert.Contains(t, desc, "1. Remove the template entry from prompts/index.json\n")
	assert.NotContains(t, desc, "metadata.json")
}

func TestSubmit_BlankCommentPlaceholder(t *testing.T) {
	repo, headers := seededRepo(t)
	w := newWorkflow(repo)

	req, err := w.Submit(context.Background(), DeletionRequest{Header: headers[1], Remaining: index.Without(headers, 1), Actor: "bob", Comment: "  "})
	require.NoError(t, err)
	assert.Equal(t, "No comment provided", req.Comment)
	assert.Contains(t, repo.PullRequests()[0].Description, "Comment: No comment provided")
}

func TestSubmit_BranchCollision(t *testing.T) {
	repo, headers := seededRepo(t)
	require.NoError(t, repo.CreateBranch(context.Background(), BranchName("id-1", fixedNow), "main"))
	w := newWorkflow(repo)

	_, err := w.Submit(context.Background(), DeletionRequest{Header: headers[0], Remaining: index.Without(headers, 0), Actor: "alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, bitbucket.ErrConflict)
	assert.Empty(t, repo.PullRequests())
}

type failingPRRepo struct {
	*bitbucket.MemoryClient
}

func (failingPRRepo) CreatePullRequest(context.Context, bitbucket.PullRequestInput) (*bitbucket.PullRequestRef, error) {
	return nil, &bitbucket.APIError{Op: "create_pull_request", StatusCode: 500, Message: "boom", Err: bitbucket.ErrHost}
}

func TestSubmit_PullRequestFailureKeepsBranch(t *testing.T) {
	repo, headers := seededRepo(t)
	w := newWorkflow(failingPRRepo{repo})

	_, err := w.Submit(context.Background(), DeletionRequest{Header: headers[0], Remaining: index.Without(headers, 0), Actor: "alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, bitbucket.ErrHost)
	assert.True(t, repo.HasBranch(BranchName("id-1", fixedNow)))
}

func TestSubmit_RequiresID(t *testing.T) {
	repo, _ := seededRepo(t)
	_, err := newWorkflow(repo).Submit(context.Background(), DeletionRequest{})
	assert.Error(t, err)
}

func TestParseBranch(t *testing.T) {
	tests := []struct {
		name   string
		branch string
		id     string
		ok     bool
	}{
		{"uuid id", "delete-template-0b8f1c2e-4d6a-4f3b-9a1e-7c5d2e8f9a01-1714557600000", "0b8f1c2e-4d6a-4f3b-9a1e-7c5d2e8f9a01", true},
		{"simple id", "delete-template-abc-1", "abc", true},
		{"other prefix", "feature/delete-template-abc-1", "", false},
		{"no timestamp", "delete-template-abc", "", false},
		{"bad timestamp", "delete-template-abc-xyz", "", false},
		{"trailing hyphen", "delete-template-abc-", "", false},
		{"empty id", "delete-template--1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, _, ok := ParseBranch(tt.branch)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}

	id, created, ok := ParseBranch(BranchName("x-y", fixedNow))
	require.True(t, ok)
	assert.Equal(t, "x-y", id)
	assert.True(t, created.Equal(fixedNow))
}

func TestFinalize(t *testing.T) {
	ctx := context.Background()

	t.Run("merged after host merge", func(t *testing.T) {
		repo, headers := seededRepo(t)
		w := newWorkflow(repo)
		req, err := w.Submit(ctx, DeletionRequest{Header: headers[0], Remaining: index.Without(headers, 0), Actor: "alice"})
		require.NoError(t, err)
		_, err = repo.MergePullRequest(req.PullRequest.ID)
		require.NoError(t, err)

		out := w.Finalize(ctx, PullRequestEvent{Action: ActionMerged, PullRequestID: req.PullRequest.ID, SourceBranch: req.Branch, DestinationBranch: "main"})
		assert.Equal(t, OutcomeMerged, out.Result)
		assert.Equal(t, "id-1", out.RecordID)
		assert.False(t, out.StillListed)
	})

	t.Run("merged event while index still lists record", func(t *testing.T) {
		repo, _ := seededRepo(t)
		w := newWorkflow(repo)
		out := w.Finalize(ctx, PullRequestEvent{Action: ActionMerged, SourceBranch: BranchName("id-2", fixedNow)})
		assert.Equal(t, OutcomeMerged, out.Result)
		assert.True(t, out.StillListed)
	})

	t.Run("declined", func(t *testing.T) {
		repo, _ := seededRepo(t)
		out := newWorkflow(repo).Finalize(ctx, PullRequestEvent{Action: ActionDeclined, SourceBranch: BranchName("id-1", fixedNow), DestinationBranch: "main"})
		assert.Equal(t, OutcomeAbandoned, out.Result)
		assert.Equal(t, "id-1", out.RecordID)
	})

	t.Run("unrelated branch", func(t *testing.T) {
		repo, _ := seededRepo(t)
		out := newWorkflow(repo).Finalize(ctx, PullRequestEvent{Action: ActionMerged, SourceBranch: "feature/x"})
		assert.Equal(t, OutcomeIgnored, out.Result)
	})

	t.Run("other destination", func(t *testing.T) {
		repo, _ := seededRepo(t)
		out := newWorkflow(repo).Finalize(ctx, PullRequestEvent{Action: ActionMerged, SourceBranch: BranchName("id-1", fixedNow), DestinationBranch: "release"})
		assert.Equal(t, OutcomeIgnored, out.Result)
	})

	t.Run("index unreadable", func(t *testing.T) {
		w := newWorkflow(brokenReader{})
		out := w.Finalize(ctx, PullRequestEvent{Action: ActionMerged, SourceBranch: BranchName("id-1", fixedNow)})
		assert.Equal(t, OutcomeMerged, out.Result)
		assert.False(t, out.StillListed)
	})
}

type brokenReader struct{ Repository }

func (brokenReader) ReadFile(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("unreachable")
}
