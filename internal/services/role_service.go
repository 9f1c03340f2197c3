package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const bootstrapGrantReason = "bootstrap allow-list"

// RoleService is the only path that changes a user's base role. Every change
// is written to role_grants in the same transaction.
type RoleService struct {
	db        *gorm.DB
	bootstrap map[string]bool
}

func NewRoleService(db *gorm.DB, bootstrapAdmins []string) *RoleService {
	allow := make(map[string]bool, len(bootstrapAdmins))
	for _, email := range bootstrapAdmins {
		allow[normalizeEmail(email)] = true
	}
	return &RoleService{db: db, bootstrap: allow}
}

// InitialRole returns the role for a new account. Only addresses listed
// verbatim in BOOTSTRAP_ADMIN_EMAILS start as admin.
func (s *RoleService) InitialRole(email string) string {
	if s.bootstrap[normalizeEmail(email)] {
		return models.RoleAdmin
	}
	return models.RoleCustomer
}

// RecordInitialGrant audits a non-default initial role inside tx.
func (s *RoleService) RecordInitialGrant(tx *gorm.DB, user *models.User) error {
	if user.Role == models.RoleCustomer {
		return nil
	}
	slog.Warn("elevated role granted at registration",
		"user_id", user.ID.String(),
		"role", user.Role,
		"action", "role_grant",
	)
	return recordGrant(tx, user.ID, "", user.Role, nil, bootstrapGrantReason)
}

func recordGrant(tx *gorm.DB, userID uuid.UUID, previous, next string, grantedBy *uuid.UUID, reason string) error {
	grant := models.RoleGrant{
		UserID:       userID,
		PreviousRole: previous,
		NewRole:      next,
		GrantedBy:    grantedBy,
		Reason:       reason,
	}
	if err := tx.Create(&grant).Error; err != nil {
		return fmt.Errorf("failed to record role grant: %w", err)
	}
	return nil
}

// SetRole changes the base role of userID on behalf of actorID.
func (s *RoleService) SetRole(ctx context.Context, actorID, userID uuid.UUID, role, reason string) (*models.User, error) {
	v := &ValidationError{}
	if !models.ValidRole(role) {
		v.add("role", "role must be one of customer, team, admin")
	}
	if actorID == userID {
		v.add("userId", "you cannot change your own role")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if user.Role == role {
			return nil
		}

		if role == models.RoleTeam {
			var count int64
			if err := tx.Model(&models.TeamMember{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return &ValidationError{Fields: map[string]string{"role": "provision a team member record before assigning the team role"}}
			}
		}

		previous := user.Role
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return err
		}
		user.Role = role

		// Team claims come from the team record, so leaving the team drops it.
		if previous == models.RoleTeam {
			if err := tx.Where("user_id = ?", user.ID).Delete(&models.TeamMember{}).Error; err != nil {
				return fmt.Errorf("failed to remove team member: %w", err)
			}
		}
		return recordGrant(tx, user.ID, previous, role, &actorID, reason)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetActive activates or deactivates an account. Accounts are never deleted.
func (s *RoleService) SetActive(ctx context.Context, actorID, userID uuid.UUID, active bool) (*models.User, error) {
	if actorID == userID && !active {
		return nil, &ValidationError{Fields: map[string]string{"userId": "you cannot deactivate your own account"}}
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user.IsActive = active
	return &user, nil
}

// ProvisionTeamMember attaches a team record to userID and moves the user to the team role.
func (s *RoleService) ProvisionTeamMember(ctx context.Context, actorID, userID uuid.UUID, teamRole, department string, permissions []string) (*models.TeamMember, error) {
	if teamRole == "" {
		return nil, &ValidationError{Fields: map[string]string{"role": "team role is required"}}
	}

	member := models.TeamMember{
		UserID:     userID,
		Role:       teamRole,
		Department: department,
	}
	member.SetPermissions(permissions)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.TeamMember{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyExists
		}

		if err := tx.Create(&member).Error; err != nil {
			return err
		}
		if user.Role == models.RoleTeam {
			return nil
		}
		previous := user.Role
		if err := tx.Model(&user).Update("role", models.RoleTeam).Error; err != nil {
			return err
		}
		return recordGrant(tx, user.ID, previous, models.RoleTeam, &actorID, "team member provisioned: "+teamRole)
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateTeamMember changes the department role and permissions. The new
// values reach the user's token at the next login.
func (s *RoleService) UpdateTeamMember(ctx context.Context, memberID uuid.UUID, teamRole, department string, permissions []string) (*models.TeamMember, error) {
	var member models.TeamMember
	if err := s.db.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load team member: %w", err)
	}

	if teamRole != "" {
		member.Role = teamRole
	}
	if department != "" {
		member.Department = department
	}
	if permissions != nil {
		member.SetPermissions(permissions)
	}
	if err := s.db.WithContext(ctx).Save(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to update team member: %w", err)
	}
	return &member, nil
}

// TeamMemberFor returns the team record of userID, or nil when there is none.
func (s *RoleService) TeamMemberFor(ctx context.Context, userID uuid.UUID) (*models.TeamMember, error) {
	var member models.TeamMember
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team member: %w", err)
	}
	return &member, nil
}

func (s *RoleService) ListGrants(ctx context.Context, userID *uuid.UUID, limit, offset int) ([]models.RoleGrant, int64, error) {
	var grants []models.RoleGrant
	var total int64

	query := s.db.WithContext(ctx).Model(&models.RoleGrant{})
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&grants).Error; err != nil {
		return nil, 0, err
	}
	return grants, total, nil
}
