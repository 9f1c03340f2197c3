package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BiometricSettings holds per-device biometric unlock preferences.
type BiometricSettings struct {
	ID            uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:char(36);not null;uniqueIndex:idx_biometric_user_device,priority:1" json:"userId"`
	DeviceToken   string         `gorm:"size:255;not null;uniqueIndex:idx_biometric_user_device,priority:2" json:"-"`
	BiometricType string         `gorm:"size:30;not null" json:"biometricType"`
	IsEnabled     bool           `gorm:"not null" json:"isEnabled"`
	PinHash       *string        `gorm:"size:255" json:"-"`
	Settings      datatypes.JSON `json:"settings,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (BiometricSettings) TableName() string {
	return "biometric_settings"
}
