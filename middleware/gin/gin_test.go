package gin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ginmw "github.com/yokaihq/paddlesync/middleware/gin"
	"github.com/yokaihq/paddlesync/pkg/auth"
)

type staticVerifier struct{}

func (staticVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	if token != "good-token" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Identity{UserID: "user1", Email: "alice@example.com"}, nil
}

func newRouter(cfg ginmw.Config) *gongin.Engine {
	gongin.SetMode(gongin.TestMode)
	r := gongin.New()
	r.Use(ginmw.Middleware(cfg))
	r.GET("/me", func(c *gongin.Context) {
		id := ginmw.IdentityFromContext(c)
		if id == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		// The identity is also on the request context for framework-neutral
		// handlers.
		if auth.IdentityFromContext(c.Request.Context()) == nil {
			c.String(http.StatusInternalServerError, "missing request context identity")
			return
		}
		c.String(http.StatusOK, id.UserID)
	})
	return r
}

func TestMiddleware_ValidToken(t *testing.T) {
	router := newRouter(ginmw.Config{Verifier: staticVerifier{}})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user1", rec.Body.String())
}

func TestMiddleware_MissingToken(t *testing.T) {
	router := newRouter(ginmw.Config{Verifier: staticVerifier{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_InvalidToken(t *testing.T) {
	router := newRouter(ginmw.Config{Verifier: staticVerifier{}})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_Optional(t *testing.T) {
	router := newRouter(ginmw.Config{Verifier: staticVerifier{}, Optional: true})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestMiddleware_FromQuery(t *testing.T) {
	router := newRouter(ginmw.Config{
		Verifier: staticVerifier{},
		GetToken: ginmw.FromQuery("token"),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?token=good-token", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_PanicsWithoutVerifier(t *testing.T) {
	assert.Panics(t, func() {
		ginmw.Middleware(ginmw.Config{})
	})
}
