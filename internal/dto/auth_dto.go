package dto

import (
	"encoding/json"
	"time"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     *string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ProviderLoginRequest struct {
	IDToken string `json:"idToken"`
}

type DesktopLoginRequest struct {
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	DeviceInfo json.RawMessage `json:"deviceInfo,omitempty"`
}

type DesktopLoginVerifyRequest struct {
	Email      string          `json:"email"`
	Password   string          `json:"password"`
	OTPCode    string          `json:"otpCode"`
	DeviceInfo json.RawMessage `json:"deviceInfo,omitempty"`
}

type UserResponse struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Phone        *string    `json:"phone,omitempty"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	AuthProvider string     `json:"authProvider"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	DeviceType   *string    `json:"deviceType,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	TeamRole     string     `json:"teamRole,omitempty"`
	TeamMemberID *uuid.UUID `json:"teamMemberId,omitempty"`
	Permissions  []string   `json:"permissions,omitempty"`
}

// NewUserResponse strips credentials from user and merges the team record.
func NewUserResponse(user *models.User, member *models.TeamMember) UserResponse {
	resp := UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Phone:        user.Phone,
		Role:         user.Role,
		IsActive:     user.IsActive,
		AuthProvider: user.AuthProvider,
		LastLogin:    user.LastLogin,
		DeviceType:   user.DeviceType,
		CreatedAt:    user.CreatedAt,
	}
	if member != nil {
		id := member.ID
		resp.TeamRole = member.Role
		resp.TeamMemberID = &id
		resp.Permissions = member.Permissions()
	}
	return resp
}

type AuthResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

type LogoutResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type LogoutAllResponse struct {
	Message         string `json:"message"`
	SessionsCleared int64  `json:"sessionsCleared"`
}

type DesktopLoginRequestResponse struct {
	Message   string `json:"message"`
	ExpiresIn int    `json:"expiresIn"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error               bool              `json:"error"`
	Message             string            `json:"message"`
	Fields              map[string]string `json:"fields,omitempty"`
	RequiresMobileLogin bool              `json:"requiresMobileLogin,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
