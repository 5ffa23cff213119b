package middleware

import (
	"context"
	"net/http"
	"strings"

	"classifieds/internal/domain"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"
)

type ctxKey int

const identityKey ctxKey = iota

// TokenParser turns a bearer token into the caller's identity.
type TokenParser interface {
	ParseToken(token string) (*service.Identity, error)
}

// UserLookup loads the current state of a user account.
type UserLookup interface {
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

func WithIdentity(ctx context.Context, id service.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(identityKey).(service.Identity)
	return id, ok
}

// Viewer returns the caller as a service.Viewer; anonymous callers get the zero value.
func Viewer(ctx context.Context) service.Viewer {
	id, _ := IdentityFrom(ctx)
	return service.Viewer{UserID: id.UserID, Role: id.Role}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			id, err := parser.ParseToken(token)
			if err != nil {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and lets anonymous requests through otherwise.
func OptionalAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if id, err := parser.ParseToken(token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), *id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after Authenticate. The role claim in the token is
// not trusted on its own: the account is reloaded so that demoted or banned
// admins lose access before their token expires.
func RequireAdmin(users UserLookup, loggers *logger.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if id.Role != domain.RoleAdmin {
				utils.RespondWithErrorJSON(w, http.StatusForbidden, "admin access required")
				return
			}

			user, err := users.Me(r.Context(), id.UserID)
			if err != nil {
				loggers.ErrorLogger.Error("admin check failed", "user_id", id.UserID, utils.Err(err))
				utils.RespondWithErrorJSON(w, http.StatusForbidden, "admin access required")
				return
			}
			if !user.IsAdmin() {
				utils.RespondWithErrorJSON(w, http.StatusForbidden, "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
