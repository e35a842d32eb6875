package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"class-chat-service/internal/mocks"
)

func TestBuildHeadersSkipsEmpty(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r1", "trace_id": "t1"}, BuildHeaders("r1", "t1"))
}

func TestHeadersFromContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := trace.ContextWithSpanContext(WithRequestID(context.Background(), "req-9"), sc)

	assert.Equal(t, map[string]string{
		"x-request-id": "req-9",
		"trace_id":     "4bf92f3577b34da6a3ce929d0e0e4736",
	}, HeadersFromContext(ctx))
}

func TestPublishEvent(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })

	require.NoError(t, PublishEvent(context.Background(), RoutingMessageCreated, EventEnvelope{}, nil))

	publisher := new(mocks.EventPublisherMock)
	publisher.On("PublishJSON", mock.Anything, RoutingMessageCreated, mock.Anything, map[string]string{"x-request-id": "r1"}).Return(assert.AnError).Once()
	SetPublisher(publisher)

	err := PublishEvent(context.Background(), RoutingMessageCreated, EventEnvelope{EventType: "chat_events"}, BuildHeaders("r1", ""))

	assert.ErrorIs(t, err, assert.AnError)
	publisher.AssertExpectations(t)
}

func TestRequestHelpers(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Request-Id", "abc")
	req.Header.Set("X-Device-Id", "phone")

	assert.Equal(t, "abc", RequestIDFromRequest(req))
	assert.Equal(t, "phone", DeviceIDFromRequest(req))
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", IPFromRequest(req))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestPublisherConstructorsRejectEmptyConfig(t *testing.T) {
	_, err := NewAMQPPublisher("", "classchat.events")
	assert.Error(t, err)

	_, err = NewKafkaPublisher(nil, "classchat.events")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "classchat.events")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
