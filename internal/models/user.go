package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleCustomer = "customer"
	RoleTeam     = "team"
	RoleAdmin    = "admin"
)

const (
	ProviderEmail    = "email"
	ProviderGoogle   = "google"
	ProviderFirebase = "firebase"
)

// ValidRole reports whether role is one of the base roles.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleTeam, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record shared by the portal, admin panel and mobile app.
type User struct {
	ID           uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	Email        string     `gorm:"not null;size:255;uniqueIndex" json:"email"`
	PasswordHash *string    `gorm:"size:255" json:"-"`
	FirstName    string     `gorm:"size:100" json:"firstName"`
	LastName     string     `gorm:"size:100" json:"lastName"`
	Phone        *string    `gorm:"size:50" json:"phone,omitempty"`
	Role         string     `gorm:"size:20;not null;default:'customer'" json:"role"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	DeviceToken  *string    `gorm:"size:255" json:"-"`
	DeviceType   *string    `gorm:"size:20" json:"deviceType,omitempty"`
	AuthProvider string     `gorm:"size:20;not null;default:'email'" json:"authProvider"`
	ProviderID   *string    `gorm:"size:255;index" json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
