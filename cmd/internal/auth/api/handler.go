package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"parley/cmd/internal/auth/autherr"
	"parley/cmd/internal/auth/guard"
	"parley/cmd/internal/auth/issuer"
	"parley/cmd/internal/auth/twofactor"
	"parley/cmd/security/password"
)

// Handler wires the HTTP auth endpoints to the session services.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	issuer *issuer.Service
	guard  *guard.Guard
	second *twofactor.Gate

	loginThrottle *ipThrottle
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *issuer.Service, g *guard.Guard, second *twofactor.Gate) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:           log,
		cfg:           cfg,
		issuer:        svc,
		guard:         g,
		second:        second,
		loginThrottle: newIPThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/verify-2fa", h.handleVerifySecondFactor)
	mux.HandleFunc("POST /api/auth/refresh-token", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/auth/2fa/enroll", h.handleEnrollSecondFactor)
	mux.HandleFunc("POST /api/auth/2fa/confirm", h.handleConfirmSecondFactor)
	mux.HandleFunc("POST /api/auth/2fa/disable", h.handleDisableSecondFactor)
	mux.HandleFunc("GET /api/auth/sessions", h.handleListSessions)
	mux.HandleFunc("DELETE /api/auth/sessions/{deviceID}", h.handleRevokeSession)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username, email and password are required")
		return
	}

	u, err := h.issuer.Register(r.Context(), issuer.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.writeAuthError(w, "auth.register", err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.cfg.TrustProxy)
	if !h.loginThrottle.Allow(ip, time.Now().UTC()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	if strings.TrimSpace(req.Device.Fingerprint) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device.fingerprint is required")
		return
	}

	res, err := h.issuer.Login(r.Context(), issuer.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   req.Device.toDomain(),
		IP:       ip,
	})
	if err != nil {
		h.writeAuthError(w, "auth.login", err)
		return
	}

	if res.SecondFactorRequired {
		writeJSON(w, http.StatusOK, loginResponse{
			SecondFactorRequired: true,
			UserID:               res.UserID,
		})
		return
	}

	h.writeSession(w, res.Session)
}

func (h *Handler) handleVerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req verifySecondFactorRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and code are required")
		return
	}
	if strings.TrimSpace(req.Device.Fingerprint) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device.fingerprint is required")
		return
	}

	sess, err := h.issuer.CompleteSecondFactor(r.Context(), req.UserID, req.Code, req.Device.toDomain(), clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		h.writeAuthError(w, "auth.verify_2fa", err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := h.refreshTokenFrom(r, req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	sess, err := h.issuer.Rotate(r.Context(), refreshToken, clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		if errors.Is(err, autherr.ErrSecurityBreach) {
			h.clearAccessCookie(w)
			h.clearRefreshCookie(w)
		}
		h.writeAuthError(w, "auth.refresh", err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}
	refreshToken := h.refreshTokenFrom(r, req.RefreshToken)

	if refreshToken != "" {
		if err := h.issuer.Logout(r.Context(), refreshToken); err != nil {
			h.writeAuthError(w, "auth.logout", err)
			return
		}
	}
	h.clearAccessCookie(w)
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEnrollSecondFactor(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	enr, err := h.second.Enroll(r.Context(), p.UserID)
	if err != nil {
		h.writeAuthError(w, "auth.2fa.enroll", err)
		return
	}
	writeJSON(w, http.StatusOK, enrollSecondFactorResponse{Secret: enr.Secret, URI: enr.URI})
}

func (h *Handler) handleConfirmSecondFactor(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req secondFactorCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.second.ConfirmEnrollment(r.Context(), p.UserID, strings.TrimSpace(req.Code)); err != nil {
		h.writeAuthError(w, "auth.2fa.confirm", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDisableSecondFactor(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req secondFactorCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := h.second.Disable(r.Context(), p.UserID, strings.TrimSpace(req.Code)); err != nil {
		h.writeAuthError(w, "auth.2fa.disable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	devs, err := h.issuer.ListSessions(r.Context(), p.UserID)
	if err != nil {
		h.writeAuthError(w, "auth.sessions.list", err)
		return
	}

	out := make([]deviceResponse, 0, len(devs))
	for _, d := range devs {
		out = append(out, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	deviceID := strings.TrimSpace(r.PathValue("deviceID"))
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "device id is required")
		return
	}

	if err := h.issuer.RevokeSession(r.Context(), p.UserID, deviceID); err != nil {
		h.writeAuthError(w, "auth.sessions.revoke", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) writeSession(w http.ResponseWriter, sess issuer.Session) {
	h.setAccessCookie(w, sess.AccessToken, sess.AccessExpiresAt)
	h.setRefreshCookie(w, sess.RefreshToken, sess.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		User:    ptr(toUserResponse(sess.User)),
		Session: ptr(toSessionResponse(sess)),
	})
}

func ptr[T any](v T) *T { return &v }

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (guard.Principal, bool) {
	p, err := h.guard.Authenticate(r.Context(), h.accessTokenFrom(r))
	if err != nil {
		h.writeAuthError(w, "auth.bearer", err)
		return guard.Principal{}, false
	}
	return p, true
}

// accessTokenFrom resolves the access token: Authorization header first
// (native clients), access cookie as the browser fallback.
func (h *Handler) accessTokenFrom(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	c, err := r.Cookie(h.cfg.AccessCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// writeAuthError maps the error taxonomy onto HTTP statuses. Anything not in
// the taxonomy is a server fault and stays opaque to the client.
func (h *Handler) writeAuthError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, autherr.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, autherr.ErrInvalidSecondFactor):
		writeError(w, http.StatusUnauthorized, "invalid_second_factor", "invalid verification code")
	case errors.Is(err, autherr.ErrSecurityBreach):
		writeError(w, http.StatusUnauthorized, "security_breach", "token reuse detected; all sessions revoked")
	case errors.Is(err, autherr.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, autherr.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, autherr.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
	case errors.Is(err, autherr.ErrAccountNotActive):
		writeError(w, http.StatusForbidden, "account_not_active", "account is suspended or banned")
	case errors.Is(err, autherr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed")
	case errors.Is(err, autherr.ErrUserExists):
		writeError(w, http.StatusConflict, "conflict", "username or email already exists")
	case errors.Is(err, password.ErrPasswordTooShort), errors.Is(err, password.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "invalid_password", "password length out of bounds")
	case errors.Is(err, twofactor.ErrNotEnrolled):
		writeError(w, http.StatusBadRequest, "not_enrolled", "two-factor is not enrolled")
	case errors.Is(err, autherr.ErrUnavailable):
		h.log.Error(op+".unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
	default:
		h.log.Error(op+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if raw := r.Header.Get("X-Forwarded-For"); raw != "" {
			for _, p := range strings.Split(raw, ",") {
				if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
					return ip.String()
				}
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}
