package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/jwt"
	"github.com/taskforge/api/pkg/logger"
)

type fakeTokenValidator struct {
	validate func(token string) (*jwt.Claims, error)
}

func (f fakeTokenValidator) ValidateAccessToken(token string) (*jwt.Claims, error) {
	return f.validate(token)
}

type fakeUserSyncer struct {
	sync func(ctx context.Context, id shared.ID, email, name string) (*user.User, error)
}

func (f fakeUserSyncer) SyncFromClaims(ctx context.Context, id shared.ID, email, name string) (*user.User, error) {
	return f.sync(ctx, id, email, name)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// decodeErrorCode reads the machine-readable code out of an error response.
func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Code string `json:"code"`
	}
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

// authedRequest builds a request as it looks after Auth ran: verified claims
// and the parsed user id already sit in the context.
func authedRequest(method, target string, claims *jwt.Claims) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), ClaimsKey, claims)
	if id, err := shared.ParseID(claims.UserID); err == nil {
		ctx = context.WithValue(ctx, AuthUserIDKey, id)
	}
	return req.WithContext(ctx)
}

func TestAuth(t *testing.T) {
	log := logger.NewNop()
	userID := shared.NewID()

	tests := []struct {
		name        string
		credentials func(r *http.Request)
		claims      *jwt.Claims
		validateErr error
		wantStatus  int
	}{
		{
			name:        "missing credentials",
			credentials: func(*http.Request) {},
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name: "basic auth is not a bearer token",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "invalid token",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer bad")
			},
			validateErr: jwt.ErrInvalidToken,
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name: "expired token",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer expired")
			},
			validateErr: jwt.ErrExpiredToken,
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name: "wrong token type",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer refresh")
			},
			validateErr: jwt.ErrInvalidTokenType,
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name: "token subject is not an id",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer opaque")
			},
			claims:     &jwt.Claims{UserID: "not-an-id"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "valid token",
			credentials: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good")
			},
			claims:     &jwt.Claims{UserID: userID.String(), Email: "alice@example.com", Name: "Alice"},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotClaims *jwt.Claims
			var gotUserID shared.ID
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotClaims, _ = GetClaims(r.Context())
				gotUserID, _ = GetAuthUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			validator := fakeTokenValidator{validate: func(string) (*jwt.Claims, error) {
				if tt.validateErr != nil {
					return nil, tt.validateErr
				}
				return tt.claims, nil
			}}
			wrapped := Auth(validator, log)(handler)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
			tt.credentials(req)
			rec := httptest.NewRecorder()

			wrapped.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.claims, gotClaims)
				assert.Equal(t, tt.claims.UserID, gotUserID.String())
			} else {
				assert.Equal(t, string(apierror.CodeUnauthorized), decodeErrorCode(t, rec))
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		target string
		set    func(r *http.Request)
		want   string
	}{
		{
			name: "authorization header",
			set: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
			},
			want: "header-token",
		},
		{
			name: "scheme is case-insensitive",
			set: func(r *http.Request) {
				r.Header.Set("Authorization", "bearer header-token")
			},
			want: "header-token",
		},
		{
			name: "cookie fallback",
			set: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-token"})
			},
			want: "cookie-token",
		},
		{
			name:   "query parameter fallback",
			target: "/?token=query-token",
			set:    func(*http.Request) {},
			want:   "query-token",
		},
		{
			name: "header wins over cookie",
			set: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-token"})
			},
			want: "header-token",
		},
		{
			name: "no credentials",
			set:  func(*http.Request) {},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.target
			if target == "" {
				target = "/"
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			tt.set(req)

			assert.Equal(t, tt.want, extractToken(req))
		})
	}
}

func TestUserSync(t *testing.T) {
	log := logger.NewNop()
	claims := &jwt.Claims{UserID: shared.NewID().String(), Email: "alice@example.com", Name: "Alice"}

	t.Run("requires verified claims", func(t *testing.T) {
		called := false
		wrapped := UserSync(fakeUserSyncer{sync: func(context.Context, shared.ID, string, string) (*user.User, error) {
			called = true
			return nil, nil
		}}, log)(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("fails closed when the upsert fails", func(t *testing.T) {
		wrapped := UserSync(fakeUserSyncer{sync: func(context.Context, shared.ID, string, string) (*user.User, error) {
			return nil, errors.New("connection refused")
		}}, log)(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, authedRequest(http.MethodGet, "/", claims))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, string(apierror.CodeInternalError), decodeErrorCode(t, rec))
	})

	t.Run("stores the synced user", func(t *testing.T) {
		id := shared.MustParseID(claims.UserID)
		synced, err := user.NewFromClaims(id, claims.Email, claims.Name)
		assert.NoError(t, err)

		var gotUser *user.User
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, _ = GetLocalUser(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		wrapped := UserSync(fakeUserSyncer{sync: func(_ context.Context, gotID shared.ID, email, name string) (*user.User, error) {
			assert.Equal(t, id, gotID)
			assert.Equal(t, claims.Email, email)
			assert.Equal(t, claims.Name, name)
			return synced, nil
		}}, log)(handler)

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, authedRequest(http.MethodGet, "/", claims))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, synced, gotUser)
	})
}
