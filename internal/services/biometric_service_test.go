package services

import (
	"context"
	"testing"

	"github.com/brightpath/agency-portal/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestBiometricService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice@x.com", "Secret1").User
	svc := NewBiometricService(env.db, env.hasher)

	_, err := svc.Get(ctx, user.ID, "dev1")
	require.ErrorIs(t, err, ErrNotFound)

	pin := "1234"
	settings, err := svc.Setup(ctx, user.ID, "dev1", BiometricSetup{
		BiometricType: "face",
		Enabled:       true,
		PIN:           &pin,
		Settings:      datatypes.JSON(`{"fallback":"pin"}`),
	})
	require.NoError(t, err)
	require.True(t, settings.IsEnabled)
	require.NotNil(t, settings.PinHash)
	require.NotEqual(t, pin, *settings.PinHash)

	ok, err := svc.VerifyPIN(ctx, user.ID, "dev1", "1234")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.VerifyPIN(ctx, user.ID, "dev1", "0000")
	require.NoError(t, err)
	require.False(t, ok)

	// A second setup without a PIN keeps the stored one.
	settings, err = svc.Setup(ctx, user.ID, "dev1", BiometricSetup{BiometricType: "fingerprint", Enabled: true})
	require.NoError(t, err)
	require.Equal(t, "fingerprint", settings.BiometricType)
	ok, err = svc.VerifyPIN(ctx, user.ID, "dev1", "1234")
	require.NoError(t, err)
	require.True(t, ok)

	settings, err = svc.Toggle(ctx, user.ID, "dev1", false)
	require.NoError(t, err)
	require.False(t, settings.IsEnabled)

	var count int64
	require.NoError(t, env.db.Model(&models.BiometricSettings{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	require.NoError(t, svc.Delete(ctx, user.ID, "dev1"))
	require.ErrorIs(t, svc.Delete(ctx, user.ID, "dev1"), ErrNotFound)
	_, err = svc.Toggle(ctx, user.ID, "dev1", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBiometricService_SetupKeepsSettingsWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice@x.com", "Secret1").User
	svc := NewBiometricService(env.db, env.hasher)

	_, err := svc.Setup(ctx, user.ID, "dev1", BiometricSetup{
		BiometricType: "face",
		Enabled:       true,
		Settings:      datatypes.JSON(`{"fallback":"pin"}`),
	})
	require.NoError(t, err)

	settings, err := svc.Setup(ctx, user.ID, "dev1", BiometricSetup{BiometricType: "fingerprint", Enabled: false})
	require.NoError(t, err)
	require.Equal(t, "fingerprint", settings.BiometricType)
	require.False(t, settings.IsEnabled)
	require.JSONEq(t, `{"fallback":"pin"}`, string(settings.Settings))

	settings, err = svc.Setup(ctx, user.ID, "dev1", BiometricSetup{
		BiometricType: "fingerprint",
		Settings:      datatypes.JSON(`{"fallback":"none"}`),
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"fallback":"none"}`, string(settings.Settings))
}

func TestBiometricService_SetupValidation(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "alice@x.com", "Secret1").User
	svc := NewBiometricService(env.db, env.hasher)

	pin := "12"
	_, err := svc.Setup(context.Background(), user.ID, "dev1", BiometricSetup{BiometricType: "retina", PIN: &pin})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "biometricType")
	require.Contains(t, verr.Fields, "pin")
}

func TestBiometricService_VerifyPINWithoutPIN(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice@x.com", "Secret1").User
	svc := NewBiometricService(env.db, env.hasher)

	_, err := svc.Setup(ctx, user.ID, "dev1", BiometricSetup{BiometricType: "face", Enabled: true})
	require.NoError(t, err)
	_, err = svc.VerifyPIN(ctx, user.ID, "dev1", "1234")
	require.ErrorIs(t, err, ErrNotFound)
}
