package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"class-chat-service/internal/mocks"
	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
)

func setupRouter(provider IdentityProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.NewNop()))
	r.GET("/me", AuthMiddleware(provider), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":         identity.ID,
			"request_id": observability.RequestIDFromContext(c.Request.Context()),
		})
	})
	return r
}

func TestAuthMiddlewareAcceptsBearer(t *testing.T) {
	provider := new(mocks.IdentityProviderMock)
	provider.On("Authenticate", mock.Anything, "good").Return(models.Identity{ID: 5, Role: models.RoleStudent}, nil).Once()
	router := setupRouter(provider)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":5,"request_id":"req-1"}`, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	provider.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	provider := new(mocks.IdentityProviderMock)
	provider.On("Authenticate", mock.Anything, "bad").Return(nil, fmt.Errorf("%w: expired", models.ErrInvalidToken))
	router := setupRouter(provider)

	cases := map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"invalid": "Bearer bad",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestAuthMiddlewareProviderOutage(t *testing.T) {
	provider := new(mocks.IdentityProviderMock)
	provider.On("Authenticate", mock.Anything, "good").Return(nil, fmt.Errorf("identity service: %w", assert.AnError)).Once()
	router := setupRouter(provider)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"identity service unavailable"}`, rec.Body.String())
	provider.AssertExpectations(t)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Empty(t, BearerToken("abc"))
	assert.Empty(t, BearerToken("Token abc"))
}
