package chat

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"class-chat-service/internal/models"
	"class-chat-service/internal/observability"
	"class-chat-service/internal/repositories"
	"class-chat-service/internal/telemetry"
)

// Auditor records moderation-relevant actions.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

// Service is the entry point used by the REST and live channel surfaces.
type Service struct {
	gate    *Gate
	store   *Store
	history *History
	stats   *Stats

	auditor Auditor
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for created_at, edited_at,
// read marks and the stats window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the gate, store, history loader and aggregator.
func NewService(classes ClassDirectory, enrollments EnrollmentProvider, messages repositories.MessageRepository, opts ...Option) *Service {
	s := &Service{
		logger: zap.NewNop(),
		tracer: otel.Tracer("class-chat-service/chat"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.gate = NewGate(classes, enrollments)
	s.store = NewStore(messages, s.gate, s.now)
	s.history = NewHistory(s.gate, s.store)
	s.stats = NewStats(s.gate, messages, s.now)
	return s
}

// CanAccessClassChat runs the access gate.
func (s *Service) CanAccessClassChat(ctx context.Context, identity models.Identity, classID int64) error {
	ctx, span := s.start(ctx, "chat.access", attribute.Int64("class_id", classID))
	err := s.gate.CanAccessClassChat(ctx, identity, classID)
	s.finish(span, "access", err)
	return err
}

// Append stores a new message. Callers must have checked room membership.
func (s *Service) Append(ctx context.Context, sender models.Identity, classID int64, draft models.Draft) (models.Message, error) {
	ctx, span := s.start(ctx, "chat.append", attribute.Int64("class_id", classID))
	msg, err := s.store.Append(ctx, sender, classID, draft)
	s.finish(span, "append", err)
	if err != nil {
		return models.Message{}, err
	}

	s.publish(ctx, observability.RoutingMessageCreated, "message_created", msg)
	return msg, nil
}

// Edit changes the body of a message owned by the editor.
func (s *Service) Edit(ctx context.Context, editor models.Identity, messageID int64, body string) (models.Message, error) {
	ctx, span := s.start(ctx, "chat.edit", attribute.Int64("message_id", messageID))
	msg, err := s.store.Edit(ctx, messageID, editor.ID, body)
	s.finish(span, "edit", err)
	if err != nil {
		return models.Message{}, err
	}

	s.publish(ctx, observability.RoutingMessageUpdated, "message_updated", msg)
	s.audit(ctx, telemetry.AuditRecord{
		Level:     "INFO",
		Text:      fmt.Sprintf("message %d edited", msg.ID),
		Action:    "message.edit",
		ActorID:   editor.ID,
		ClassID:   msg.ClassID,
		MessageID: msg.ID,
	})
	return msg, nil
}

// Delete soft-deletes a message owned by the requester. changed is false for
// a repeated delete.
func (s *Service) Delete(ctx context.Context, requester models.Identity, messageID int64) (models.Message, bool, error) {
	ctx, span := s.start(ctx, "chat.delete", attribute.Int64("message_id", messageID))
	msg, changed, err := s.store.Delete(ctx, messageID, requester.ID)
	s.finish(span, "delete", err)
	if err != nil {
		return models.Message{}, false, err
	}
	if !changed {
		return msg, false, nil
	}

	s.publish(ctx, observability.RoutingMessageDeleted, "message_deleted", msg)
	s.audit(ctx, telemetry.AuditRecord{
		Level:     "WARN",
		Text:      fmt.Sprintf("message %d deleted", msg.ID),
		Action:    "message.delete",
		ActorID:   requester.ID,
		ClassID:   msg.ClassID,
		MessageID: msg.ID,
	})
	return msg, true, nil
}

// MarkRead upserts the reader's read mark.
func (s *Service) MarkRead(ctx context.Context, reader models.Identity, messageID int64) (models.Message, error) {
	ctx, span := s.start(ctx, "chat.mark_read", attribute.Int64("message_id", messageID))
	msg, err := s.store.MarkRead(ctx, reader, messageID)
	s.finish(span, "mark_read", err)
	return msg, err
}

// MessageClass resolves the class of a message.
func (s *Service) MessageClass(ctx context.Context, messageID int64) (int64, error) {
	return s.store.ClassOf(ctx, messageID)
}

// History returns a page of class history, oldest first.
func (s *Service) History(ctx context.Context, identity models.Identity, classID int64, page, limit int) (models.HistoryPage, error) {
	ctx, span := s.start(ctx, "chat.history", attribute.Int64("class_id", classID), attribute.Int("page", page))
	result, err := s.history.Get(ctx, identity, classID, page, limit)
	s.finish(span, "history", err)
	return result, err
}

// Stats returns activity counts for a class.
func (s *Service) Stats(ctx context.Context, identity models.Identity, classID int64) (models.ActivityStats, error) {
	ctx, span := s.start(ctx, "chat.stats", attribute.Int64("class_id", classID))
	result, err := s.stats.Get(ctx, identity, classID)
	s.finish(span, "stats", err)
	return result, err
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) finish(span trace.Span, op string, err error) {
	defer span.End()
	if err == nil {
		observability.IncChatOperation(op, "ok")
		return
	}
	observability.IncChatOperation(op, Code(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, Code(err))
	if Code(err) == "store_failure" || Code(err) == "internal" {
		s.logger.Error("chat operation failed", zap.String("op", op), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, routingKey, name string, msg models.Message) {
	err := observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "chat_event",
		EventName: name,
		Payload:   msg,
	}, observability.HeadersFromContext(ctx))
	if err != nil {
		s.logger.Warn("publish chat event failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, rec telemetry.AuditRecord) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, rec)
}
