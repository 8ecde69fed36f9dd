package middleware

import (
	"context"
	"net/http"

	"github.com/sakif/account-portal/internal/model"
)

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "session"

// contextKey is an unexported type used for context keys in this package.
type contextKey string

const sessionUserKey contextKey = "sessionUser"

// Authenticator resolves a session token to the logged-in user.
// *service.AccountService and *session.Gate satisfy it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.SessionUser, bool)
}

// RequireSession guards protected routes.
//
// Every request is checked against the session store; nothing is cached
// between requests. Without a live session the client is sent to loginPath
// with 303 See Other and the protected handler never runs.
//
// Protected responses are marked no-store so the browser's back button
// cannot show a page after logout.
func RequireSession(authn Authenticator, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authn.Authenticate(r.Context(), SessionToken(r))
			if !ok {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}

			w.Header().Set("Cache-Control", "no-store")

			ctx := context.WithValue(r.Context(), sessionUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken returns the raw session cookie value, or "" if the request
// has none.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		// http.ErrNoCookie means the visitor is anonymous
		return ""
	}
	return cookie.Value
}

// UserFromContext returns the user stored by RequireSession.
//
// Usage in handlers:
//
//	user, ok := middleware.UserFromContext(r.Context())
//	if !ok {
//	    // route was not wrapped in RequireSession
//	}
func UserFromContext(ctx context.Context) (*model.SessionUser, bool) {
	user, ok := ctx.Value(sessionUserKey).(*model.SessionUser)
	return user, ok && user != nil
}
