package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightpath/agency-portal/internal/database/dbtest"
	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "test-secret-0123456789abcdef"

// fastHasher skips the production cost floor to keep tests quick.
func fastHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcrypt.MinCost}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []PushMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg PushMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) last() (PushMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return PushMessage{}, false
	}
	return n.msgs[len(n.msgs)-1], true
}

type testEnv struct {
	db        *gorm.DB
	hasher    *PasswordHasher
	issuer    *TokenIssuer
	blacklist *TokenBlacklist
	mobile    *MobileSessionService
	otp       *OTPService
	roles     *RoleService
	auth      *AuthService
	notifier  *recordingNotifier
}

func newTestEnv(t *testing.T, bootstrapAdmins ...string) *testEnv {
	t.Helper()

	db := dbtest.Open(t)
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		hasher:    fastHasher(),
		issuer:    issuer,
		blacklist: NewTokenBlacklist(NewGormRevocationStore(db), true, time.Second),
		mobile:    NewMobileSessionService(db),
		roles:     NewRoleService(db, bootstrapAdmins),
		notifier:  &recordingNotifier{},
	}
	env.otp = NewOTPService(db, env.mobile, env.notifier, "999999", DefaultOTPTTL)
	env.auth = NewAuthService(db, env.hasher, env.issuer, env.blacklist, env.mobile, env.otp, env.roles)
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *Session {
	t.Helper()
	sess, err := e.auth.Register(context.Background(), &dto.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	return sess
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
