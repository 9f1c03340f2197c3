package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MobileSession tracks the app session of one (user, device) pair.
type MobileSession struct {
	ID             uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:char(36);not null;uniqueIndex:idx_mobile_sessions_user_device,priority:1" json:"userId"`
	DeviceToken    string         `gorm:"size:255;not null;uniqueIndex:idx_mobile_sessions_user_device,priority:2" json:"-"`
	DeviceType     string         `gorm:"size:20" json:"deviceType"`
	SessionToken   string         `gorm:"size:128;not null;index" json:"-"`
	SessionExpiry  time.Time      `gorm:"not null" json:"sessionExpiry"`
	DeviceInfo     datatypes.JSON `json:"deviceInfo,omitempty"`
	IsActive       bool           `gorm:"not null;default:true;index" json:"isActive"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	CreatedAt      time.Time      `json:"createdAt"`
	User           User           `gorm:"foreignKey:UserID" json:"-"`
}

func (MobileSession) TableName() string {
	return "mobile_sessions"
}
