package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/writique/writique/internal/apperror"
	"github.com/writique/writique/internal/model"
)

// contextKey is an unexported type for context keys in this package, so only
// this package can read or write the principal/user values.
type contextKey string

const (
	principalKey contextKey = "principal"
	userKey      contextKey = "user"
)

// UserResolver maps a verified Principal to the local user record,
// provisioning one on first login. Implemented by service.UserService.
type UserResolver interface {
	Resolve(ctx context.Context, principal *Principal) (*model.User, error)
}

// RequireAuth is step one of the pipeline: it reads the Authorization header,
// verifies the bearer token, and stores the Principal in the request context.
//
// A missing header or wrong scheme is rejected as "missing credentials"; a
// token the verifier refuses is "invalid credentials". Both are 401 — the
// request never proceeds with a partial or default identity.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveUser is step two: it looks up (or provisions) the local user for
// the Principal placed in the context by RequireAuth and stores it alongside.
//
// Resolution failure is a server error, not an auth error — the token was
// valid, the directory just couldn't be consulted. The logger gets the
// detail; the client gets a generic message.
func ResolveUser(resolver UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				// ResolveUser mounted without RequireAuth — a wiring bug.
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}

			user, err := resolver.Resolve(r.Context(), principal)
			if err != nil {
				logger.Error("user resolution failed",
					slog.String("subjectID", principal.SubjectID),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "error syncing user data")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces the role policy: the resolved user must carry the
// admin role. Mount after RequireAuth and ResolveUser.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}
			if !user.IsAdmin() {
				writeAuthError(w, http.StatusForbidden, "forbidden", "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext retrieves the verified Principal for this request.
// Returns ok=false if RequireAuth did not run.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// UserFromContext retrieves the resolved local user for this request.
// Returns ok=false if ResolveUser did not run.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// writeAuthError emits the standard error body without importing the handler
// package (which would create an import cycle).
func writeAuthError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + errType + `","message":"` + message + `"}`))
}

// MustUser returns the resolved user or an unauthorized apperror. Handlers on
// protected routes use it instead of re-checking both context values.
func MustUser(ctx context.Context) (*model.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, apperror.Unauthorized("missing credentials")
	}
	return user, nil
}
