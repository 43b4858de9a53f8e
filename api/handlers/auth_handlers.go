package handlers

import (
	"net/http"
	"strings"
	"time"

	"trustlog/config"
	"trustlog/core/auth"
	"trustlog/core/errs"
	"trustlog/core/utils"
)

type AuthHandler struct {
	cfg     *config.AppConfig
	service *auth.Service
	logger  *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, service *auth.Service, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, service: service, logger: logger}
}

type sessionResponse struct {
	Username  string `json:"username"`
	CSRFToken string `json:"csrf_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if err := decodeJSON(r, &cred); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	sess, err := h.service.Login(r.Context(), cred, ClientIP(r, h.cfg), r.UserAgent())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.setSessionCookies(w, r, sess)
	writeJSON(w, http.StatusOK, sessionResponse{Username: sess.Username, CSRFToken: sess.CSRFToken})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var cred auth.Credentials
	if err := decodeJSON(r, &cred); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	sess, err := h.service.Register(r.Context(), cred, ClientIP(r, h.cfg), r.UserAgent())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.setSessionCookies(w, r, sess)
	writeJSON(w, http.StatusCreated, sessionResponse{Username: sess.Username, CSRFToken: sess.CSRFToken})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	if err := h.service.Logout(r.Context(), id); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.clearSessionCookies(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports whether the caller carries a live session. It is public and
// never fails.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status(r.Context(), SessionToken(r)))
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	secure := IsSecureRequest(r, h.cfg)
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
		MaxAge:   maxAge,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	secure := IsSecureRequest(r, h.cfg)
	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name == SessionCookieName,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
}

// SessionToken extracts the session id from the cookie, falling back to an
// Authorization bearer header for non-browser clients.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return BearerToken(r)
}

func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func requireIdentity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, errs.Unauthenticated("")
	}
	return id, nil
}
