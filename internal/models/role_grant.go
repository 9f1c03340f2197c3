package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleGrant is the audit trail of base-role changes. GrantedBy is nil for
// grants made by the bootstrap allow-list.
type RoleGrant struct {
	ID           uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:char(36);not null;index" json:"userId"`
	PreviousRole string     `gorm:"size:20" json:"previousRole"`
	NewRole      string     `gorm:"size:20;not null" json:"newRole"`
	GrantedBy    *uuid.UUID `gorm:"type:char(36)" json:"grantedBy,omitempty"`
	Reason       string     `gorm:"size:255" json:"reason"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (RoleGrant) TableName() string {
	return "role_grants"
}
