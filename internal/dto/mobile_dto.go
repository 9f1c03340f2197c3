package dto

import (
	"encoding/json"
	"time"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
)

type MobileLoginRequest struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	DeviceToken string          `json:"deviceToken,omitempty"`
	DeviceType  string          `json:"deviceType,omitempty"`
	DeviceInfo  json.RawMessage `json:"deviceInfo,omitempty"`
}

type MobileRegisterRequest struct {
	RegisterRequest
	DeviceToken string          `json:"deviceToken,omitempty"`
	DeviceType  string          `json:"deviceType,omitempty"`
	DeviceInfo  json.RawMessage `json:"deviceInfo,omitempty"`
}

type MobileLogoutRequest struct {
	DeviceToken string `json:"deviceToken,omitempty"`
}

type MobileAuthResponse struct {
	Message      string       `json:"message"`
	User         UserResponse `json:"user"`
	Token        string       `json:"token"`
	SessionToken string       `json:"sessionToken,omitempty"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type ValidateSessionRequest struct {
	UserID       string `json:"userId"`
	DeviceToken  string `json:"deviceToken"`
	SessionToken string `json:"sessionToken"`
}

type ValidateSessionResponse struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// MobileSessionResponse lists a session without its opaque token.
type MobileSessionResponse struct {
	ID             uuid.UUID       `json:"id"`
	DeviceType     string          `json:"deviceType"`
	DeviceInfo     json.RawMessage `json:"deviceInfo,omitempty"`
	SessionExpiry  time.Time       `json:"sessionExpiry"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func NewMobileSessionResponse(s *models.MobileSession) MobileSessionResponse {
	resp := MobileSessionResponse{
		ID:             s.ID,
		DeviceType:     s.DeviceType,
		SessionExpiry:  s.SessionExpiry,
		LastActivityAt: s.LastActivityAt,
		CreatedAt:      s.CreatedAt,
	}
	if len(s.DeviceInfo) > 0 {
		resp.DeviceInfo = json.RawMessage(s.DeviceInfo)
	}
	return resp
}

type BiometricSetupRequest struct {
	BiometricType string          `json:"biometricType"`
	Enabled       *bool           `json:"enabled,omitempty"`
	LocalPIN      *string         `json:"localPin,omitempty"`
	Settings      json.RawMessage `json:"settings,omitempty"`
}

type BiometricToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type BiometricPINRequest struct {
	PIN string `json:"pin"`
}

type BiometricResponse struct {
	BiometricType string          `json:"biometricType"`
	Enabled       bool            `json:"enabled"`
	HasLocalPIN   bool            `json:"hasLocalPin"`
	Settings      json.RawMessage `json:"settings,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func NewBiometricResponse(b *models.BiometricSettings) BiometricResponse {
	resp := BiometricResponse{
		BiometricType: b.BiometricType,
		Enabled:       b.IsEnabled,
		HasLocalPIN:   b.PinHash != nil,
		UpdatedAt:     b.UpdatedAt,
	}
	if len(b.Settings) > 0 {
		resp.Settings = json.RawMessage(b.Settings)
	}
	return resp
}
