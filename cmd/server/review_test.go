package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/approval"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/bitbucket"
	"github.com/Jianwei07/prompt-temp-v1/cmd/server/internal/templates"
)

func reviewSetup(t *testing.T) (*gin.Engine, *templates.Store, *bitbucket.MemoryClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := bitbucket.NewMemoryClient("main")
	wf := approval.NewWorkflow(repo, approval.Config{})
	store := templates.NewStore(repo, templates.StoreConfig{RequireApproval: true}, templates.WithApprover(wf))

	r := gin.New()
	registerMemoryReviewRoutes(r, repo, wf, nil)
	return r, store, repo
}

func stageDeletion(t *testing.T, store *templates.Store) string {
	t.Helper()
	ctx := context.Background()
	tpl, err := store.Create(ctx, templates.Fields{Name: "Greeting", Department: "CS", AppCode: "APP1", Content: "Hello"}, "alice")
	require.NoError(t, err)
	res, err := store.Delete(ctx, tpl.ID, "obsolete", "alice")
	require.NoError(t, err)
	require.Equal(t, templates.StatusPendingApproval, res.Status)
	return tpl.ID
}

func post(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	return w
}

func TestMemoryReview_MergeCompletesDeletion(t *testing.T) {
	r, store, _ := reviewSetup(t)
	id := stageDeletion(t, store)

	w := post(r, "/api/dev/pull-requests/1/merge")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Success bool             `json:"success"`
		State   string           `json:"state"`
		Outcome approval.Outcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, bitbucket.StateMerged, body.State)
	assert.Equal(t, approval.OutcomeMerged, body.Outcome.Result)
	assert.Equal(t, id, body.Outcome.RecordID)

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, templates.ErrNotFound)

	assert.Equal(t, http.StatusConflict, post(r, "/api/dev/pull-requests/1/merge").Code)
}

func TestMemoryReview_DeclineKeepsRecord(t *testing.T) {
	r, store, _ := reviewSetup(t)
	id := stageDeletion(t, store)

	w := post(r, "/api/dev/pull-requests/1/decline")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), approval.OutcomeAbandoned)

	_, err := store.Get(context.Background(), id)
	assert.NoError(t, err)
}

func TestMemoryReview_BadRequests(t *testing.T) {
	r, _, _ := reviewSetup(t)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/dev/pull-requests/abc/merge").Code)
	assert.Equal(t, http.StatusNotFound, post(r, "/api/dev/pull-requests/99/merge").Code)
}
