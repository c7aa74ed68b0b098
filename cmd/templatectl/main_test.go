package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method, path, query, user, auth string
	body                            map[string]interface{}
}

func startServer(t *testing.T, status int, response string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method, rec.path, rec.query = r.Method, r.URL.Path, r.URL.RawQuery
		rec.user, rec.auth = r.Header.Get("X-User"), r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TEMPLATECTL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TEMPLATECTL_SERVER_URL", "")
	t.Setenv("TEMPLATECTL_TOKEN", "")
	t.Setenv("TEMPLATECTL_USER", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListCmd_TextTable(t *testing.T) {
	srv, rec := startServer(t, http.StatusOK, `[{"id":"a1","name":"Greeting","department":"CS","appCode":"APP1","version":"v1.0","updatedBy":"alice"}]`)

	out, err := run(t, "--server-url", srv.URL, "list", "-q", "greet", "--eager")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/templates", rec.path)
	assert.Equal(t, "eager=true&q=greet", rec.query)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Greeting")
	assert.Contains(t, out, "alice")
}

func TestCreateCmd_Body(t *testing.T) {
	srv, rec := startServer(t, http.StatusOK, `{"success":true,"template":{"id":"a1"}}`)
	contentFile := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(contentFile, []byte("Hello {{name}}"), 0o644))

	_, err := run(t, "--server-url", srv.URL, "-u", "alice", "create",
		"--name", "Greeting", "--department", "CS", "--app-code", "APP1",
		"--content-file", contentFile, "--example", "Hi => Hello!")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "alice", rec.user)
	assert.Equal(t, "Greeting", rec.body["name"])
	assert.Equal(t, "APP1", rec.body["appCode"])
	assert.Equal(t, "Hello {{name}}", rec.body["content"])
	assert.Equal(t, []interface{}{map[string]interface{}{"input": "Hi", "output": "Hello!"}}, rec.body["examples"])
}

func TestCreateCmd_InvalidExample(t *testing.T) {
	srv, _ := startServer(t, http.StatusOK, `{}`)
	_, err := run(t, "--server-url", srv.URL, "create",
		"--name", "n", "--department", "d", "--app-code", "a", "--content", "c", "--example", "no-separator")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input=>output")
}

func TestDeleteCmd_SendsComment(t *testing.T) {
	srv, rec := startServer(t, http.StatusOK, `{"success":true,"status":"pending_approval"}`)

	out, err := run(t, "--server-url", srv.URL, "--token", "tok", "-o", "json", "delete", "a b", "-m", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, rec.method)
	assert.Equal(t, "/api/templates/a b", rec.path)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Equal(t, "duplicate", rec.body["requestComment"])
	assert.Contains(t, out, `"status": "pending_approval"`)
}

func TestCmd_ErrorMessage(t *testing.T) {
	srv, _ := startServer(t, http.StatusNotFound, `{"success":false,"error":"Template not found","code":"TEMPLATE_NOT_FOUND"}`)

	_, err := run(t, "--server-url", srv.URL, "get", "nope")
	require.Error(t, err)
	assert.Equal(t, "HTTP 404: Template not found (TEMPLATE_NOT_FOUND)", err.Error())
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: http://from-file\ntoken: file-token\nuser: file-user\n"), 0o600))
	t.Setenv("TEMPLATECTL_CONFIG", path)
	t.Setenv("TEMPLATECTL_SERVER_URL", "")
	t.Setenv("TEMPLATECTL_TOKEN", "env-token")
	t.Setenv("TEMPLATECTL_USER", "")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--user", "flag-user"}))
	cfg := LoadConfig(cmd)

	assert.Equal(t, "http://from-file", cfg.ServerURL)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "flag-user", cfg.User)
	assert.Equal(t, "text", cfg.Output)
}
