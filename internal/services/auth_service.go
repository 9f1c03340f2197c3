package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session is the outcome of every successful login path.
type Session struct {
	User          *models.User
	TeamMember    *models.TeamMember
	Token         string
	ExpiresAt     time.Time
	MobileSession *models.MobileSession
}

type AuthService struct {
	db        *gorm.DB
	hasher    *PasswordHasher
	issuer    *TokenIssuer
	blacklist *TokenBlacklist
	mobile    *MobileSessionService
	otp       *OTPService
	roles     *RoleService
	providers map[string]IdentityProvider
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	db *gorm.DB,
	hasher *PasswordHasher,
	issuer *TokenIssuer,
	blacklist *TokenBlacklist,
	mobile *MobileSessionService,
	otp *OTPService,
	roles *RoleService,
) *AuthService {
	return &AuthService{
		db:        db,
		hasher:    hasher,
		issuer:    issuer,
		blacklist: blacklist,
		mobile:    mobile,
		otp:       otp,
		roles:     roles,
		providers: make(map[string]IdentityProvider),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterProvider enables login through an external identity provider.
func (s *AuthService) RegisterProvider(p IdentityProvider) {
	s.providers[p.Name()] = p
}

func (s *AuthService) Issuer() *TokenIssuer {
	return s.issuer
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*Session, error) {
	user, err := s.createUser(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*Session, error) {
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) MobileRegister(ctx context.Context, req *dto.MobileRegisterRequest) (*Session, error) {
	user, err := s.createUser(ctx, &req.RegisterRequest)
	if err != nil {
		return nil, err
	}
	sess, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.attachDevice(ctx, sess, req.DeviceToken, req.DeviceType, req.DeviceInfo); err != nil {
		return nil, err
	}
	return sess, nil
}

// MobileLogin authenticates like Login and, when a device token is given,
// starts or supersedes the mobile session of that device.
func (s *AuthService) MobileLogin(ctx context.Context, req *dto.MobileLoginRequest) (*Session, error) {
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	sess, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.attachDevice(ctx, sess, req.DeviceToken, req.DeviceType, req.DeviceInfo); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes token when one was presented. It is a no-op otherwise.
// Logout revokes token when it is one of ours. Anything that fails
// verification is already refused by VerifyJWT and is not recorded.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}
	return s.blacklist.Revoke(ctx, token, &userID, "logout")
}

// LogoutAll ends every mobile session of the user and revokes the current
// token. Other outstanding tokens stay valid until they expire.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID, token string) (int64, error) {
	cleared, err := s.mobile.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate mobile sessions: %w", err)
	}
	if err := s.blacklist.Revoke(ctx, token, &userID, "logout_all"); err != nil {
		return 0, err
	}
	return cleared, nil
}

func (s *AuthService) MobileLogout(ctx context.Context, userID uuid.UUID, token, deviceToken string) error {
	if deviceToken != "" {
		if _, err := s.mobile.Deactivate(ctx, userID, deviceToken); err != nil {
			return fmt.Errorf("failed to deactivate mobile session: %w", err)
		}
	}
	return s.blacklist.Revoke(ctx, token, &userID, "mobile_logout")
}

// CurrentUser reloads the account behind a verified token.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, *models.TeamMember, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrUnauthorized
	}

	member, err := s.roles.TeamMemberFor(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return &user, member, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req *dto.ChangePasswordRequest) error {
	v := &ValidationError{}
	if req.CurrentPassword == "" {
		v.add("currentPassword", "current password is required")
	}
	validatePassword(v, "newPassword", req.NewPassword)
	if err := v.orNil(); err != nil {
		return err
	}

	user, _, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !s.hasher.Verify(req.CurrentPassword, *user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password changed", "user_id", user.ID.String(), "action", "change_password")
	return nil
}

// RequestDesktopOTP re-checks the credentials and sends a login code to the
// user's signed-in mobile devices.
func (s *AuthService) RequestDesktopOTP(ctx context.Context, req *dto.DesktopLoginRequest) (*models.OtpCode, error) {
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.otp.Issue(ctx, user, models.OTPPurposeDesktopLogin, rawJSON(req.DeviceInfo))
}

// VerifyDesktopOTP re-checks the credentials, consumes the code and starts a
// browser session.
func (s *AuthService) VerifyDesktopOTP(ctx context.Context, req *dto.DesktopLoginVerifyRequest) (*Session, error) {
	v := &ValidationError{}
	if req.Email == "" {
		v.add("email", "email is required")
	}
	if req.Password == "" {
		v.add("password", "password is required")
	}
	if req.OTPCode == "" {
		v.add("otpCode", "otp code is required")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.otp.Consume(ctx, user.ID, models.OTPPurposeDesktopLogin, strings.TrimSpace(req.OTPCode)); err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

// ProviderLogin signs in with a credential issued by a registered identity
// provider. Unknown verified addresses get a new customer account; known ones
// are linked to the provider subject on first use.
func (s *AuthService) ProviderLogin(ctx context.Context, provider, credential string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrProviderNotEnabled
	}
	if credential == "" {
		return nil, &ValidationError{Fields: map[string]string{"idToken": "idToken is required"}}
	}

	ident, err := p.Authenticate(ctx, credential)
	if err != nil {
		slog.Warn("identity provider rejected credential", "error", err, "provider", provider, "action", "provider_login")
		return nil, ErrInvalidCredentials
	}

	user, err := s.findOrCreateExternal(ctx, ident)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) findOrCreateExternal(ctx context.Context, ident *ExternalIdentity) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", ident.Email).First(&user).Error
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, ErrInvalidCredentials
		}
		if user.ProviderID == nil {
			subject := ident.Subject
			if err := s.db.WithContext(ctx).Model(&user).Update("provider_id", subject).Error; err != nil {
				return nil, fmt.Errorf("failed to link identity provider: %w", err)
			}
			user.ProviderID = &subject
		}
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	subject := ident.Subject
	user = models.User{
		Email:        ident.Email,
		FirstName:    ident.FirstName,
		LastName:     ident.LastName,
		Role:         s.roles.InitialRole(ident.Email),
		IsActive:     true,
		AuthProvider: ident.Provider,
		ProviderID:   &subject,
	}
	if err := s.insertUser(ctx, &user); err != nil {
		return nil, err
	}
	slog.Info("user created from identity provider", "user_id", user.ID.String(), "provider", ident.Provider, "action", "register")
	return &user, nil
}

func (s *AuthService) createUser(ctx context.Context, req *dto.RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if err := validateRegistration(email, req.Password, req.FirstName, req.LastName); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        req.Phone,
		Role:         s.roles.InitialRole(email),
		IsActive:     true,
		AuthProvider: models.ProviderEmail,
	}
	if err := s.insertUser(ctx, &user); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID.String(), "action", "register")
	return &user, nil
}

func (s *AuthService) insertUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return s.roles.RecordInitialGrant(tx, user)
	})
}

// authenticate returns ErrInvalidCredentials for every failure mode so the
// response never reveals which factor was wrong. Unknown and password-less
// accounts still pay for one bcrypt comparison.
func (s *AuthService) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err != nil || !user.HasPassword() {
		s.hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

// startSession resolves the team record, stamps the login time and signs a
// token. A team-role user without a team record cannot log in.
func (s *AuthService) startSession(ctx context.Context, user *models.User) (*Session, error) {
	member, err := s.roles.TeamMemberFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleTeam && member == nil {
		slog.Warn("team user has no team member record", "user_id", user.ID.String(), "action", "login")
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	token, expiresAt, err := s.issuer.Issue(ClaimsFor(user, member), 0)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:       user,
		TeamMember: member,
		Token:      token,
		ExpiresAt:  expiresAt,
	}, nil
}

func (s *AuthService) attachDevice(ctx context.Context, sess *Session, deviceToken, deviceType string, deviceInfo json.RawMessage) error {
	deviceToken = strings.TrimSpace(deviceToken)
	if deviceToken == "" {
		return nil
	}
	if deviceType == "" {
		deviceType = "unknown"
	}

	mobile, err := s.mobile.Upsert(ctx, sess.User.ID, deviceToken, deviceType, rawJSON(deviceInfo))
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Model(sess.User).Updates(map[string]interface{}{
		"device_token": deviceToken,
		"device_type":  deviceType,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update user device: %w", err)
	}
	sess.User.DeviceToken = &deviceToken
	sess.User.DeviceType = &deviceType
	sess.MobileSession = mobile
	return nil
}

func rawJSON(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return datatypes.JSON(raw)
}
