package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TeamMember gives a "team" user a department role and a permission set.
type TeamMember struct {
	ID          uuid.UUID      `gorm:"type:char(36);primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:char(36);not null;uniqueIndex" json:"userId"`
	Role        string         `gorm:"size:100;not null" json:"role"`
	Department  string         `gorm:"size:100" json:"department,omitempty"`
	RoleDetails datatypes.JSON `json:"roleDetails"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	User        User           `gorm:"foreignKey:UserID" json:"-"`
}

func (TeamMember) TableName() string {
	return "team_members"
}

// RoleDetails is the JSON shape stored in TeamMember.RoleDetails.
type RoleDetails struct {
	Permissions []string `json:"permissions"`
}

// Permissions decodes the permission list. Malformed details yield no permissions.
func (t *TeamMember) Permissions() []string {
	if len(t.RoleDetails) == 0 {
		return nil
	}
	var details RoleDetails
	if err := json.Unmarshal(t.RoleDetails, &details); err != nil {
		return nil
	}
	return details.Permissions
}

// SetPermissions encodes perms into RoleDetails.
func (t *TeamMember) SetPermissions(perms []string) {
	if perms == nil {
		perms = []string{}
	}
	b, _ := json.Marshal(RoleDetails{Permissions: perms})
	t.RoleDetails = datatypes.JSON(b)
}
