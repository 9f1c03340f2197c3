package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var biometricTypes = map[string]bool{
	"fingerprint": true,
	"face":        true,
	"iris":        true,
	"pin":         true,
}

// BiometricSetup is the input of BiometricService.Setup. A nil PIN or nil
// Settings keeps the previously stored value.
type BiometricSetup struct {
	BiometricType string
	Enabled       bool
	PIN           *string
	Settings      datatypes.JSON
}

type BiometricService struct {
	db     *gorm.DB
	hasher *PasswordHasher
}

func NewBiometricService(db *gorm.DB, hasher *PasswordHasher) *BiometricService {
	return &BiometricService{db: db, hasher: hasher}
}

func (s *BiometricService) Get(ctx context.Context, userID uuid.UUID, deviceToken string) (*models.BiometricSettings, error) {
	var settings models.BiometricSettings
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_token = ?", userID, deviceToken).
		First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load biometric settings: %w", err)
	}
	return &settings, nil
}

// Setup creates or replaces the settings of one device.
func (s *BiometricService) Setup(ctx context.Context, userID uuid.UUID, deviceToken string, in BiometricSetup) (*models.BiometricSettings, error) {
	v := &ValidationError{}
	if !biometricTypes[in.BiometricType] {
		v.add("biometricType", "biometricType must be one of fingerprint, face, iris, pin")
	}
	if in.PIN != nil && !pinPattern.MatchString(*in.PIN) {
		v.add("pin", "pin must be 4 to 8 digits")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	settings := models.BiometricSettings{
		UserID:        userID,
		DeviceToken:   deviceToken,
		BiometricType: in.BiometricType,
		IsEnabled:     in.Enabled,
		Settings:      in.Settings,
	}
	updates := []string{"biometric_type", "is_enabled", "updated_at"}
	if in.Settings != nil {
		updates = append(updates, "settings")
	}
	if in.PIN != nil {
		hash, err := s.hasher.Hash(*in.PIN)
		if err != nil {
			return nil, err
		}
		settings.PinHash = &hash
		updates = append(updates, "pin_hash")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_token"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save biometric settings: %w", err)
	}
	return s.Get(ctx, userID, deviceToken)
}

func (s *BiometricService) Toggle(ctx context.Context, userID uuid.UUID, deviceToken string, enabled bool) (*models.BiometricSettings, error) {
	result := s.db.WithContext(ctx).Model(&models.BiometricSettings{}).
		Where("user_id = ? AND device_token = ?", userID, deviceToken).
		Update("is_enabled", enabled)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to toggle biometric settings: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, userID, deviceToken)
}

// VerifyPIN checks the local fallback PIN of the device.
func (s *BiometricService) VerifyPIN(ctx context.Context, userID uuid.UUID, deviceToken, pin string) (bool, error) {
	settings, err := s.Get(ctx, userID, deviceToken)
	if err != nil {
		return false, err
	}
	if settings.PinHash == nil {
		return false, ErrNotFound
	}
	return s.hasher.Verify(pin, *settings.PinHash), nil
}

func (s *BiometricService) Delete(ctx context.Context, userID uuid.UUID, deviceToken string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND device_token = ?", userID, deviceToken).
		Delete(&models.BiometricSettings{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete biometric settings: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
