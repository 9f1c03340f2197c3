package dto

import "github.com/google/uuid"

type SetRoleRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type ProvisionTeamMemberRequest struct {
	UserID      uuid.UUID `json:"userId"`
	Role        string    `json:"role"`
	Department  string    `json:"department,omitempty"`
	Permissions []string  `json:"permissions"`
}

type UpdateTeamMemberRequest struct {
	Role        string   `json:"role,omitempty"`
	Department  string   `json:"department,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
