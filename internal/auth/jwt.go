package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"class-chat-service/internal/models"
)

var ErrInvalidToken = models.ErrInvalidToken

// Claims carries the platform identity inside a signed token.
type Claims struct {
	Role        models.Role `json:"role"`
	Name        string      `json:"name"`
	ExternalRef string      `json:"ref,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider authenticates HS256 tokens issued by the platform.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Authenticate validates the token and returns the identity it names.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if claims.Role != models.RoleTeacher && claims.Role != models.RoleStudent {
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return models.Identity{
		ID:          id,
		Role:        claims.Role,
		DisplayName: claims.Name,
		ExternalRef: claims.ExternalRef,
	}, nil
}

// IssueToken signs a token for identity. Used by tests and local tooling.
func (p *JWTProvider) IssueToken(identity models.Identity, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Role:        identity.Role,
		Name:        identity.DisplayName,
		ExternalRef: identity.ExternalRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
