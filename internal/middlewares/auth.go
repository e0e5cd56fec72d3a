package middlewares

import (
	"context"
	"net/http"
	"slices"

	"github.com/homegrid/backend/internal/models"
	"go.uber.org/zap"
)

const currentUserKey contextKey = "currentUser"

// IdentityResolver resolves a session token to a usable user record.
// A nil user with a nil error means "no valid session"; an error means the
// backing store or cache failed.
type IdentityResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, error)
}

// AccessChecker exposes the authorization predicates used by route guards
type AccessChecker interface {
	Allowed(user *models.User) bool
	IsAdmin(user *models.User) bool
}

// Guard builds the route protection middleware chain. The check order is
// fixed here rather than at call sites: Allowed and Role always run the
// session check first, and Role always runs the allow-list check before the
// role check, so a non-whitelisted admin is still denied.
type Guard struct {
	identity   IdentityResolver
	access     AccessChecker
	cookieName string
	logger     *zap.Logger
}

// NewGuard creates a guard over the given identity resolver and access checker
func NewGuard(identity IdentityResolver, access AccessChecker, cookieName string, logger *zap.Logger) *Guard {
	return &Guard{
		identity:   identity,
		access:     access,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Authenticated requires a valid session and puts the user into the request context
func (g *Guard) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(g.cookieName)
		if err != nil || cookie.Value == "" {
			respondUnauthorized(w)
			return
		}

		user, err := g.identity.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			// Store/cache failure is not an authentication failure
			g.logger.Error("failed to resolve session",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"internal server error"}`))
			return
		}
		if user == nil {
			respondUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), currentUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Allowed requires a valid session and allow-list membership
func (g *Guard) Allowed(next http.Handler) http.Handler {
	return g.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok || !g.access.Allowed(user) {
			respondAccessDenied(w)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// Role requires a valid session, allow-list membership and one of the given roles
func (g *Guard) Role(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Allowed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok || !slices.Contains(roles, user.Role) {
				respondAccessDenied(w)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// CurrentUser retrieves the authenticated user from context
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(currentUserKey).(*models.User)
	return user, ok
}

// EnabledMiddleware hides routes behind a configuration flag, returning 404
// when the flag is off so the route is indistinguishable from a missing one
func EnabledMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}

func respondAccessDenied(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"access denied"}`))
}
