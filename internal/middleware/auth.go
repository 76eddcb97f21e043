package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/store"
)

const SessionCookieName = "coinvault_session"

var errNoCredentials = errors.New("no credentials")

// Authenticator resolves a request to an AuthContext from either the session
// cookie or an "Authorization: Bearer" JWT.
type Authenticator struct {
	sessions *store.SessionStore
	users    *store.UserStore
	tokens   *auth.TokenIssuer
}

func NewAuthenticator(db store.DBTX, tokens *auth.TokenIssuer) *Authenticator {
	return &Authenticator{
		sessions: store.NewSessionStore(db),
		users:    store.NewUserStore(db),
		tokens:   tokens,
	}
}

func (a *Authenticator) Authenticate(r *http.Request) (auth.AuthContext, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return auth.AuthContext{}, auth.ErrInvalidToken
		}
		return a.tokens.Verify(token)
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.AuthContext{}, errNoCredentials
	}
	sess, err := a.sessions.GetByToken(r.Context(), cookie.Value)
	if err != nil {
		return auth.AuthContext{}, err
	}
	if sess == nil {
		return auth.AuthContext{}, errNoCredentials
	}
	u, err := a.users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		return auth.AuthContext{}, err
	}
	if u == nil {
		return auth.AuthContext{}, errNoCredentials
	}

	ac := auth.AuthContext{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: sess.ID,
	}
	if u.CompanyID != nil {
		ac.CompanyID = *u.CompanyID
	}
	return ac, nil
}

// RequireAuth rejects unauthenticated requests with 401 and stores the
// AuthContext on the request context otherwise.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := a.Authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireCapability checks that the authenticated role holds c. It must run
// after RequireAuth.
func RequireCapability(c auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Allowed(r.Context(), c) {
				writeError(w, http.StatusForbidden, "unauthorized", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}
