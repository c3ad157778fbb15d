package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxSubjectKey contextKey = "subject"
	ctxRoleKey    contextKey = "role"
)

// TokenValidator validates a bearer token and returns its subject and role.
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, string, error)
}

// JWTAuth authenticates requests with a bearer JWT and requires the given
// role. The subject id is placed into the request context.
func JWTAuth(validator TokenValidator, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			id, gotRole, err := validator.ValidateToken(raw)
			if err != nil || gotRole != role {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubjectKey, id)
			ctx = context.WithValue(ctx, ctxRoleKey, gotRole)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminKeyAuth guards admin routes with a static key in the X-Admin-Key
// header, compared in constant time.
func AdminKeyAuth(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Admin-Key")
			if adminKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectFromCtx returns the authenticated subject id, or uuid.Nil.
func SubjectFromCtx(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxSubjectKey).(uuid.UUID)
	return id
}

// RoleFromCtx returns the authenticated role, or "".
func RoleFromCtx(ctx context.Context) string {
	role, _ := ctx.Value(ctxRoleKey).(string)
	return role
}

// WithSubject returns a context carrying the given subject id.
func WithSubject(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxSubjectKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
