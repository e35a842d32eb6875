package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"class-chat-service/internal/middleware"
	"class-chat-service/internal/observability"
	"class-chat-service/internal/telemetry"
	"class-chat-service/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, hub *ws.Hub, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/rooms", func(c *gin.Context) {
		rooms, err := hub.Rooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		ctx := observability.WithRequestID(c.Request.Context(), requestIDFromContext(c))
		var actorID int64
		if identity, ok := middleware.IdentityFrom(c); ok {
			actorID = identity.ID
		}
		emitter.Emit(ctx, telemetry.AuditRecord{Level: "INFO", Text: "audit test", Action: "debug.audit_test", ActorID: actorID})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
