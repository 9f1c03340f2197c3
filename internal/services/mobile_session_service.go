package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const MobileSessionTTL = 7 * 24 * time.Hour

// MobileSessionService keeps at most one session per (user, device token).
type MobileSessionService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewMobileSessionService(db *gorm.DB) *MobileSessionService {
	return &MobileSessionService{
		db:  db,
		ttl: MobileSessionTTL,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Upsert starts a session for the device, replacing any previous session
// token for the same (user, device) pair in a single statement.
func (s *MobileSessionService) Upsert(ctx context.Context, userID uuid.UUID, deviceToken, deviceType string, deviceInfo datatypes.JSON) (*models.MobileSession, error) {
	sessionToken, err := GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := models.MobileSession{
		UserID:         userID,
		DeviceToken:    deviceToken,
		DeviceType:     deviceType,
		SessionToken:   sessionToken,
		SessionExpiry:  now.Add(s.ttl),
		DeviceInfo:     deviceInfo,
		IsActive:       true,
		LastActivityAt: now,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "device_token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_type", "session_token", "session_expiry", "device_info", "is_active", "last_activity_at",
		}),
	}).Create(&session).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert mobile session: %w", err)
	}

	var stored models.MobileSession
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_token = ?", userID, deviceToken).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load mobile session: %w", err)
	}
	return &stored, nil
}

func (s *MobileSessionService) activeScope(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	now := s.now()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND is_active = ? AND session_expiry > ?", userID, true, now)
	}
}

func (s *MobileSessionService) ActiveCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.MobileSession{}).
		Scopes(s.activeScope(userID)).
		Count(&count).Error
	return count, err
}

func (s *MobileSessionService) ListActive(ctx context.Context, userID uuid.UUID) ([]models.MobileSession, error) {
	var sessions []models.MobileSession
	err := s.db.WithContext(ctx).
		Scopes(s.activeScope(userID)).
		Order("last_activity_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// Validate checks an opaque session token for the device and refreshes its
// last-activity timestamp.
func (s *MobileSessionService) Validate(ctx context.Context, userID uuid.UUID, deviceToken, sessionToken string) (*models.MobileSession, error) {
	if deviceToken == "" || sessionToken == "" {
		return nil, ErrUnauthorized
	}

	var session models.MobileSession
	err := s.db.WithContext(ctx).
		Scopes(s.activeScope(userID)).
		Where("device_token = ?", deviceToken).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mobile session: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(session.SessionToken), []byte(sessionToken)) != 1 {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&session).Update("last_activity_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to touch mobile session: %w", err)
	}
	session.LastActivityAt = now
	return &session, nil
}

// Deactivate ends the session of one device.
func (s *MobileSessionService) Deactivate(ctx context.Context, userID uuid.UUID, deviceToken string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.MobileSession{}).
		Where("user_id = ? AND device_token = ? AND is_active = ?", userID, deviceToken, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// DeactivateAll ends every session of the user.
func (s *MobileSessionService) DeactivateAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.MobileSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// Revoke ends one session by id, scoped to its owner.
func (s *MobileSessionService) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.MobileSession{}).
		Where("id = ? AND user_id = ? AND is_active = ?", sessionID, userID, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke mobile session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStale removes sessions that ended or expired before cutoff.
func (s *MobileSessionService) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("(is_active = ? AND last_activity_at < ?) OR session_expiry < ?", false, cutoff, cutoff).
		Delete(&models.MobileSession{})
	return result.RowsAffected, result.Error
}

// GenerateOpaqueToken returns size random bytes encoded as base64url.
func GenerateOpaqueToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
