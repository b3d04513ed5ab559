package authapi

import (
	"time"

	"parley/cmd/identity"
	"parley/cmd/internal/auth/device"
	"parley/cmd/internal/auth/issuer"
)

// ---- requests ----

type deviceInfo struct {
	Fingerprint string `json:"fingerprint"`
	Type        string `json:"type,omitempty"`
	OS          string `json:"os,omitempty"`
	Browser     string `json:"browser,omitempty"`
}

func (d deviceInfo) toDomain() device.Info {
	return device.Info{
		Fingerprint: d.Fingerprint,
		Type:        d.Type,
		OS:          d.OS,
		Browser:     d.Browser,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Device   deviceInfo `json:"device"`
}

type verifySecondFactorRequest struct {
	UserID string     `json:"user_id"`
	Code   string     `json:"code"`
	Device deviceInfo `json:"device"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type secondFactorCodeRequest struct {
	Code string `json:"code"`
}

// ---- responses ----

type userResponse struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	DeviceID         string    `json:"device_id"`
}

func toSessionResponse(s issuer.Session) sessionResponse {
	return sessionResponse{
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
		DeviceID:         s.Device.ID,
	}
}

type loginResponse struct {
	SecondFactorRequired bool             `json:"second_factor_required,omitempty"`
	UserID               string           `json:"user_id,omitempty"`
	User                 *userResponse    `json:"user,omitempty"`
	Session              *sessionResponse `json:"session,omitempty"`
}

type registerResponse struct {
	User userResponse `json:"user"`
}

type enrollSecondFactorResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type deviceResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type,omitempty"`
	OS         string    `json:"os,omitempty"`
	Browser    string    `json:"browser,omitempty"`
	IP         string    `json:"ip,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func toDeviceResponse(d device.Device) deviceResponse {
	return deviceResponse{
		ID:         d.ID,
		Type:       d.Type,
		OS:         d.OS,
		Browser:    d.Browser,
		IP:         d.IP,
		LastSeenAt: d.LastSeenAt,
	}
}

type sessionsResponse struct {
	Sessions []deviceResponse `json:"sessions"`
}
