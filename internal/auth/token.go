// Package auth verifies bearer credentials issued by the session service
// and keeps the local user mirror current.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tuniwaste/exchange/internal/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims is the payload the session service signs. Company and Verified
// are optional; older tokens carry only id and role.
type Claims struct {
	UserID   string `json:"id"`
	Role     string `json:"role"`
	Company  string `json:"company,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Authenticate validates an HS256 token and returns its principal.
func (v *Verifier) Authenticate(_ context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthenticated
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return domain.User{}, ErrUnauthenticated
	}

	if _, err := uuid.Parse(claims.UserID); err != nil {
		return domain.User{}, fmt.Errorf("%w: subject is not a valid id", ErrUnauthenticated)
	}
	role := domain.Role(claims.Role)
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return domain.User{
		ID:       claims.UserID,
		Role:     role,
		Company:  claims.Company,
		Verified: claims.Verified,
	}, nil
}

// Issue signs a token for user. The exchange never logs anyone in; this
// exists for tooling and tests.
func (v *Verifier) Issue(user domain.User, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		UserID:   user.ID,
		Role:     string(user.Role),
		Company:  user.Company,
		Verified: user.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type userKey struct{}

func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey{}).(domain.User)
	return user, ok
}
