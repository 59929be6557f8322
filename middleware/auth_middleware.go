package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"meetup-backend/apperr"
	"meetup-backend/util"
)

// UserIDKeyType is the context key type for the authenticated user id.
type UserIDKeyType string

const UserIDKey UserIDKeyType = "userID"

// Verifier turns a bearer credential into a user id.
type Verifier interface {
	Verify(token string) (int64, error)
}

// UserChecker reports whether a user id still exists.
type UserChecker interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// UserIDFromContext returns the id stored by AuthMiddleware.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok && id != 0
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for clients that cannot set headers (browsers
// opening a websocket or an EventSource).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid token. users may be nil;
// when set, tokens of deleted users are refused too.
func AuthMiddleware(verifier Verifier, users UserChecker, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := verifier.Verify(bearerToken(r))
			if err != nil {
				log.WithFields(logrus.Fields{
					"remote": r.RemoteAddr,
					"path":   r.URL.Path,
				}).WithError(err).Debug("unauthorized request")
				util.WriteError(w, apperr.New(apperr.Unauthorized, "you must be logged in"))
				return
			}

			if users != nil {
				exists, err := users.Exists(r.Context(), userID)
				if err != nil {
					log.WithError(err).Error("checking token user")
					util.WriteError(w, err)
					return
				}
				if !exists {
					util.WriteError(w, apperr.New(apperr.Unauthorized, "you must be logged in"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
