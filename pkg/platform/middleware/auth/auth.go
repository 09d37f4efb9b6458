// Package auth binds bearer tokens to the ledger identity a request acts as.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"registrar/pkg/requestcontext"
)

// JWTValidator validates a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the subset of token claims the middleware needs.
type JWTClaims struct {
	Identity string
	JTI      string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's identity claim for the ledger calls made on the request's behalf.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			identity, ok := authenticate(w, r, validator, logger, token)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(ctx, identity)))
		})
	}
}

// OptionalAuth lets anonymous requests through as fallbackIdentity. A token
// that is present must still be valid.
func OptionalAuth(validator JWTValidator, fallbackIdentity string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(ctx, fallbackIdentity)))
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			identity, ok := authenticate(w, r, validator, logger, token)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(ctx, identity)))
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, validator JWTValidator, logger *slog.Logger, token string) (string, bool) {
	ctx := r.Context()
	claims, err := validator.ValidateToken(token)
	if err != nil {
		logger.WarnContext(ctx, "unauthorized access - invalid token",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return "", false
	}
	identity := strings.TrimSpace(claims.Identity)
	if identity == "" {
		logger.WarnContext(ctx, "unauthorized access - token without identity",
			"jti", claims.JTI,
			"request_id", requestcontext.RequestID(ctx),
		)
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return "", false
	}
	return identity, true
}
