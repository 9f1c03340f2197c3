package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const OTPPurposeDesktopLogin = "desktop_login"

// OtpCode is a short-lived, single-use code confirmed from a mobile device.
type OtpCode struct {
	ID         uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:char(36);not null;index:idx_otp_codes_lookup,priority:1" json:"userId"`
	Code       string         `gorm:"size:6;not null;index:idx_otp_codes_lookup,priority:2" json:"-"`
	Purpose    string         `gorm:"size:50;not null" json:"purpose"`
	DeviceInfo datatypes.JSON `json:"deviceInfo,omitempty"`
	Used       bool           `gorm:"not null;default:false" json:"used"`
	ExpiresAt  time.Time      `gorm:"not null;index" json:"expiresAt"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (OtpCode) TableName() string {
	return "otp_codes"
}
