package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Routing keys for chat domain events.
const (
	RoutingMessageCreated = "classchat.message.created"
	RoutingMessageUpdated = "classchat.message.updated"
	RoutingMessageDeleted = "classchat.message.deleted"
	RoutingWSConnected    = "classchat.ws.connected"
	RoutingWSDisconnected = "classchat.ws.disconnected"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// HeadersFromContext builds publish headers from the request id and active
// span stored in ctx.
func HeadersFromContext(ctx context.Context) map[string]string {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return BuildHeaders(RequestIDFromContext(ctx), traceID)
}
