package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/coinvault/internal/apperr"
	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/middleware"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type AuthHandler struct {
	users      *store.UserStore
	companies  *store.CompanyStore
	sessions   *store.SessionStore
	activity   *store.ActivityStore
	tokens     *auth.TokenIssuer
	sessionTTL time.Duration
	secure     bool
	logger     *slog.Logger
}

func NewAuthHandler(db store.DBTX, tokens *auth.TokenIssuer, sessionTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:      store.NewUserStore(db),
		companies:  store.NewCompanyStore(db),
		sessions:   store.NewSessionStore(db),
		activity:   store.NewActivityStore(db),
		tokens:     tokens,
		sessionTTL: sessionTTL,
		secure:     secureCookies,
		logger:     logger,
	}
}

type registerRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Name       string `json:"name" validate:"required,max=200"`
	CompanyID  int64  `json:"companyId" validate:"required,gt=0"`
	Department string `json:"department" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

// Register handles POST /api/auth/register. New accounts are always
// employees of an existing company.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()

	company, err := h.companies.GetByID(ctx, req.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if company == nil {
		writeError(w, h.logger, apperr.NotFound("company not found"))
		return
	}
	existing, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeError(w, h.logger, apperr.Validation("email is already registered"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	u, err := h.users.Create(ctx, store.NewUser{
		CompanyID:    &company.ID,
		Email:        req.Email,
		Name:         req.Name,
		Role:         model.RoleEmployee,
		Department:   req.Department,
		PasswordHash: hash,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.activity.Log(ctx, u.ID, "register", company.Name); err != nil {
		h.logger.Warn("log registration", "error", err)
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/auth/login. It sets the session cookie and, when a
// JWT secret is configured, also returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()

	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if u == nil || u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password", "kind": "unauthenticated"})
		return
	}

	sess, err := h.sessions.Create(ctx, u.ID, h.sessionTTL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	resp := loginResponse{User: u}
	if h.tokens.Enabled() {
		token, exp, err := h.tokens.Issue(u)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		resp.Token = token
		resp.ExpiresAt = &exp
	}
	if err := h.activity.Log(ctx, u.ID, "login", ""); err != nil {
		h.logger.Warn("log login", "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if u == nil {
		writeError(w, h.logger, apperr.NotFound("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}
