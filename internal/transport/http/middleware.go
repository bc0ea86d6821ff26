package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tuniwaste/exchange/internal/auth"
	"github.com/tuniwaste/exchange/internal/domain"
)

// RequestLogger logs basic request details and latency.
func RequestLogger(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the realtime upgrade pass through the logger.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Authenticator verifies a bearer credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// UserRecorder keeps the local user mirror in step with verified claims.
type UserRecorder interface {
	Remember(ctx context.Context, user domain.User) error
}

// RequireUser rejects requests without a valid bearer token and stores
// the principal in the request context.
func RequireUser(authn Authenticator, users UserRecorder, logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := authn.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "access token required")
			return
		}
		if users != nil {
			if err := users.Remember(r.Context(), user); err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// currentUser returns the principal set by RequireUser.
func currentUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "access token required")
		return domain.User{}, false
	}
	return user, true
}
