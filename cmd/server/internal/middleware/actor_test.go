package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func sign(t *testing.T, key []byte, method jwt.SigningMethod, username string) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, Claims{
		Username:         username,
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())},
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func actorRouter(key []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ResolveActor(key))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user"))
	})
	return r
}

func do(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResolveActor(t *testing.T) {
	r := actorRouter(secret)

	w := do(r, "Bearer "+sign(t, secret, jwt.SigningMethodHS256, "alice"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = do(r, "Basic dXNlcjpwdw==")
	assert.Equal(t, http.StatusOK, w.Code, "non-bearer auth is left alone")

	w = do(r, "Bearer "+sign(t, []byte("another-secret-another-secret-xx"), jwt.SigningMethodHS256, "mallory"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")

	w = do(r, "Bearer "+sign(t, secret, jwt.SigningMethodHS512, "alice"))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "only HS256 accepted")

	w = do(r, "Bearer "+sign(t, secret, jwt.SigningMethodHS256, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "username claim required")
}

func TestResolveActor_NoSecret(t *testing.T) {
	r := actorRouter(nil)
	w := do(r, "Bearer whatever")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}
