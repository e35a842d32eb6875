package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"class-chat-service/internal/models"
)

const authenticateMethod = "/identity.v1.IdentityService/Authenticate"

var ErrInvalidToken = models.ErrInvalidToken

// Invoker is the part of a gRPC client connection the identity client needs.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpclib.CallOption) error
}

// IdentityClient resolves bearer tokens through the platform identity service.
// Calls are guarded by a circuit breaker so an unavailable identity service
// fails fast.
type IdentityClient struct {
	conn    Invoker
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewIdentityClient constructs the wrapper.
func NewIdentityClient(conn Invoker, timeout time.Duration, logger *zap.Logger) *IdentityClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidToken)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &IdentityClient{conn: conn, cb: cb, timeout: timeout}
}

// Authenticate verifies the token and returns the caller's identity.
func (c *IdentityClient) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.authenticate(ctx, token)
	})
	if err != nil {
		return models.Identity{}, err
	}
	return out.(models.Identity), nil
}

func (c *IdentityClient) authenticate(ctx context.Context, token string) (models.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		return models.Identity{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, authenticateMethod, req, resp); err != nil {
		return models.Identity{}, fmt.Errorf("identity service: %w", err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		return models.Identity{}, ErrInvalidToken
	}
	identity := models.Identity{
		ID:          int64(fields["user_id"].GetNumberValue()),
		Role:        models.Role(fields["role"].GetStringValue()),
		DisplayName: fields["display_name"].GetStringValue(),
		ExternalRef: fields["external_ref"].GetStringValue(),
	}
	if identity.ID <= 0 {
		return models.Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if identity.Role != models.RoleTeacher && identity.Role != models.RoleStudent {
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, identity.Role)
	}
	return identity, nil
}
