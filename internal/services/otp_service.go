package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultOTPTTL = 5 * time.Minute

// OTPService issues and consumes single-use desktop login codes.
type OTPService struct {
	db         *gorm.DB
	sessions   *MobileSessionService
	notifier   PushNotifier
	masterCode string
	ttl        time.Duration
	now        func() time.Time
}

// NewOTPService builds the service. An empty masterCode disables the bypass.
func NewOTPService(db *gorm.DB, sessions *MobileSessionService, notifier PushNotifier, masterCode string, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	if notifier == nil {
		notifier = LogPushNotifier{}
	}
	return &OTPService{
		db:         db,
		sessions:   sessions,
		notifier:   notifier,
		masterCode: masterCode,
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *OTPService) TTL() time.Duration {
	return s.ttl
}

// Issue creates a code for user and pushes it to the user's active mobile
// sessions. It fails with ErrMobileLoginRequired when there are none.
func (s *OTPService) Issue(ctx context.Context, user *models.User, purpose string, deviceInfo datatypes.JSON) (*models.OtpCode, error) {
	sessions, err := s.sessions.ListActive(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mobile sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, ErrMobileLoginRequired
	}

	code, err := generateOTP(s.masterCode)
	if err != nil {
		return nil, err
	}

	otp := models.OtpCode{
		UserID:     user.ID,
		Code:       code,
		Purpose:    purpose,
		DeviceInfo: deviceInfo,
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&otp).Error; err != nil {
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	targets := make([]PushTarget, 0, len(sessions))
	for _, sess := range sessions {
		targets = append(targets, PushTarget{DeviceToken: sess.DeviceToken, DeviceType: sess.DeviceType})
	}
	msg := PushMessage{
		Kind:    purpose,
		UserID:  user.ID,
		Title:   "Desktop login request",
		Body:    "Your login code is " + code,
		Data:    map[string]string{"code": code, "expiresIn": fmt.Sprint(int(s.ttl.Seconds()))},
		Targets: targets,
		SentAt:  s.now(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		// Delivery is best-effort; the user can request a new code.
		slog.Error("failed to dispatch otp push notification",
			"error", err,
			"user_id", user.ID.String(),
			"action", "otp_push",
		)
	}

	return &otp, nil
}

// Consume accepts the master code when enabled, otherwise marks a matching
// unexpired code used. The final update only succeeds for the request that
// flips used from false to true, so a code can never be consumed twice.
func (s *OTPService) Consume(ctx context.Context, userID uuid.UUID, purpose, code string) error {
	if s.masterCode != "" && subtle.ConstantTimeCompare([]byte(code), []byte(s.masterCode)) == 1 {
		slog.Warn("master otp code accepted", "user_id", userID.String(), "action", "otp_master_bypass")
		return nil
	}
	if !otpPattern.MatchString(code) {
		return ErrInvalidOrExpiredCode
	}

	var otp models.OtpCode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND code = ? AND purpose = ? AND used = ? AND expires_at > ?",
			userID, code, purpose, false, s.now()).
		Order("created_at DESC").
		First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidOrExpiredCode
	}
	if err != nil {
		return fmt.Errorf("failed to load otp: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.OtpCode{}).
		Where("id = ? AND used = ?", otp.ID, false).
		Update("used", true)
	if result.Error != nil {
		return fmt.Errorf("failed to consume otp: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrInvalidOrExpiredCode
	}
	return nil
}

// DeleteExpired removes codes that can no longer be consumed.
func (s *OTPService) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", s.now(), true).
		Delete(&models.OtpCode{})
	return result.RowsAffected, result.Error
}

var otpRange = big.NewInt(900000)

// generateOTP returns a random code in [100000, 999999] that differs from reserved.
func generateOTP(reserved string) (string, error) {
	for {
		n, err := rand.Int(rand.Reader, otpRange)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		code := fmt.Sprintf("%06d", n.Int64()+100000)
		if code != reserved {
			return code, nil
		}
	}
}
