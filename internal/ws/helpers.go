package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

// encodeEvent frames data in the live channel envelope.
func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Event: event, Data: raw})
}

func publishWSEvent(ctx context.Context, routingKey, name string, info ConnInfo, extra map[string]interface{}) {
	ws := map[string]interface{}{
		"event":       name,
		"conn_id":     info.ConnID,
		"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
	}
	for k, v := range extra {
		ws[k] = v
	}
	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws":       ws,
			"identity": info.fields(),
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
