package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/jwt"
	"github.com/taskforge/api/pkg/logger"
)

// Context keys for authentication values. Typed via logger.ContextKey so
// request-scoped identity shows up in log lines.
const (
	// ClaimsKey stores the verified access token claims.
	ClaimsKey logger.ContextKey = "auth_claims"
	// AuthUserIDKey stores the authenticated user id.
	AuthUserIDKey logger.ContextKey = "auth_user_id"
	// LocalUserKey stores the user row synced from the token claims.
	LocalUserKey logger.ContextKey = "local_user"
)

// TokenValidator verifies an access token and returns its claims.
// *jwt.Generator implements this.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*jwt.Claims, error)
}

// UserSyncer upserts the local user row from verified token claims.
// *app.UserService implements this.
type UserSyncer interface {
	SyncFromClaims(ctx context.Context, id shared.ID, email, name string) (*user.User, error)
}

// Auth verifies the bearer token and stores the verified claims plus the
// parsed user id in the request context. Requests without a valid token
// never reach the handler.
func Auth(tokens TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				apierror.Unauthorized("authentication required").WriteJSON(w)
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				handleAuthError(w, r, err, log)
				return
			}

			userID, err := shared.ParseID(claims.UserID)
			if err != nil {
				log.Warn("token subject is not a valid id",
					"subject", claims.UserID,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Unauthorized("invalid token subject").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, AuthUserIDKey, userID)
			ctx = context.WithValue(ctx, logger.ContextKeyUserID, userID.String())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserSync upserts the local user row from the verified claims and stores
// it in the request context. Runs after Auth; the upsert keeps the user
// table consistent with the external identity provider on every request.
func UserSync(users UserSyncer, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				apierror.Unauthorized("authentication required").WriteJSON(w)
				return
			}

			userID, _ := GetAuthUserID(r.Context())
			u, err := users.SyncFromClaims(r.Context(), userID, claims.Email, claims.Name)
			if err != nil {
				log.Error("user sync failed",
					"user_id", userID.String(),
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.InternalError(err).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), LocalUserKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims extracts the verified token claims from context.
func GetClaims(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*jwt.Claims)
	return claims, ok
}

// GetAuthUserID extracts the authenticated user id from context.
func GetAuthUserID(ctx context.Context) (shared.ID, bool) {
	id, ok := ctx.Value(AuthUserIDKey).(shared.ID)
	return id, ok
}

// GetLocalUser extracts the synced user row from context.
func GetLocalUser(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(LocalUserKey).(*user.User)
	return u, ok
}

// extractToken pulls the access token from the request. Priority:
// Authorization header, then auth_token cookie, then token query parameter.
// The query parameter exists for tooling; browsers should never use it.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := r.Cookie("auth_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

// handleAuthError maps token validation failures to 401 responses without
// leaking verification internals.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	var apiErr *apierror.Error

	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		apiErr = apierror.Unauthorized("token has expired")
	case errors.Is(err, jwt.ErrInvalidTokenType):
		apiErr = apierror.Unauthorized("wrong token type for this endpoint")
	default:
		apiErr = apierror.Unauthorized("invalid token")
	}

	log.Debug("authentication rejected",
		"reason", apiErr.Message,
		"request_id", GetRequestID(r.Context()),
	)
	apiErr.WriteJSON(w)
}
