package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"class-chat-service/internal/observability"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for moderation-relevant actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	Action    string `json:"action,omitempty"`
	ClassID   int64  `json:"class_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

// AuditRecord describes one audited action.
type AuditRecord struct {
	Level     string
	Text      string
	Action    string
	ActorID   int64
	ClassID   int64
	MessageID int64
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes rec. Failures are logged and never returned.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	var userID *string
	if rec.ActorID != 0 {
		id := strconv.FormatInt(rec.ActorID, 10)
		userID = &id
	}

	e.logger.Debug("audit emit",
		zap.String("level", rec.Level),
		zap.String("action", rec.Action),
		zap.String("request_id", requestID),
		zap.Int64("user_id", rec.ActorID),
		zap.String("text", rec.Text),
	)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:     rec.Level,
			Text:      rec.Text,
			Action:    rec.Action,
			ClassID:   rec.ClassID,
			MessageID: rec.MessageID,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", zap.Error(err))
	}
}
