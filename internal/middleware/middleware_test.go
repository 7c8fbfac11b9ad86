package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSessions map[string]*session.Session

func (f fakeSessions) Authenticate(_ context.Context, token string) (*session.Session, error) {
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, models.ErrUnauthenticated
}

func newRouter(allowQuery bool, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	sessions := fakeSessions{
		"psy": {ID: "s1", UserID: "psy1", Role: models.RolePsychologist},
		"pat": {ID: "s2", UserID: "pat1", Role: models.RolePatient},
	}
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(sessions, allowQuery)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		s, _ := SessionFromContext(c)
		c.String(http.StatusOK, s.UserID)
	})
	r.GET("/me", handlers...)
	return r
}

func get(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(false)

	w := get(r, "/me", "psy")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "psy1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "nope").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me?token=psy", "").Code, "query token is off by default")
}

func TestAuthMiddlewareQueryToken(t *testing.T) {
	r := newRouter(true)

	w := get(r, "/me?token=pat", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pat1", w.Body.String())

	w = get(r, "/me?token=pat", "psy")
	assert.Equal(t, "psy1", w.Body.String(), "the header wins")
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok := bearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestRoleAuthMiddleware(t *testing.T) {
	r := newRouter(false, RoleAuthMiddleware(models.RolePsychologist))

	assert.Equal(t, http.StatusOK, get(r, "/me", "psy").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/me", "pat").Code)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		get(r, path, "")
	}

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
		assert.Equal(t, "/missing", entries[1].ContextMap()["path"])
		assert.EqualValues(t, http.StatusNotFound, entries[1].ContextMap()["status"])
	}
}
