package models

import (
	"time"

	"github.com/google/uuid"
)

// BlacklistEntry is the durable record of a revoked session token.
// Only the SHA-256 hash of the token is stored.
type BlacklistEntry struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	TokenHash string     `gorm:"uniqueIndex;not null;size:64" json:"-"`
	UserID    *uuid.UUID `gorm:"type:char(36);index" json:"userId,omitempty"`
	Reason    string     `gorm:"size:100;not null" json:"reason"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (BlacklistEntry) TableName() string {
	return "token_blacklist"
}
