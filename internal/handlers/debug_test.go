package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"class-chat-service/internal/middleware"
	"class-chat-service/internal/mocks"
	"class-chat-service/internal/telemetry"
	"class-chat-service/internal/ws"
)

func setupDebugRouter(t *testing.T, emitter *telemetry.AuditEmitter, enabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(new(mocks.ChatServiceMock), ws.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterDebugRoutes(r, hub, emitter, enabled)
	return r
}

func TestDebugRoutesDisabled(t *testing.T) {
	router := setupDebugRouter(t, nil, false)

	rec := doRequest(router, http.MethodGet, "/debug/rooms", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRooms(t *testing.T) {
	router := setupDebugRouter(t, nil, true)

	rec := doRequest(router, http.MethodGet, "/debug/rooms", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[]}`, rec.Body.String())
}

func TestDebugAuditTest(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.events", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Action == "debug.audit_test" && env.RequestID != ""
	})).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.events", "class-chat-service", "test", zap.NewNop())
	router := setupDebugRouter(t, emitter, true)

	rec := doRequest(router, http.MethodGet, "/debug/audit-test", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugAuditTestWithoutEmitter(t *testing.T) {
	router := setupDebugRouter(t, nil, true)

	rec := doRequest(router, http.MethodGet, "/debug/audit-test", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
