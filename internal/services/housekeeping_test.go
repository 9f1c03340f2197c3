package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHousekeeping_RunOnceSkipsFailingTask(t *testing.T) {
	var ran []string
	svc := NewHousekeepingService(quietLogger(), time.Hour,
		CleanupTask{Name: "a", Run: func(context.Context) (int64, error) {
			ran = append(ran, "a")
			return 2, nil
		}},
		CleanupTask{Name: "b", Run: func(context.Context) (int64, error) {
			ran = append(ran, "b")
			return 0, errors.New("boom")
		}},
		CleanupTask{Name: "c", Run: func(context.Context) (int64, error) {
			ran = append(ran, "c")
			return 3, nil
		}},
	)

	require.Equal(t, int64(5), svc.RunOnce(context.Background()))
	require.Equal(t, []string{"a", "b", "c"}, ran)
}

func TestHousekeeping_StartRunsImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	svc := NewHousekeepingService(quietLogger(), time.Hour, CleanupTask{
		Name: "count",
		Run: func(context.Context) (int64, error) {
			calls.Add(1)
			return 1, nil
		},
	})

	svc.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	svc.Stop()
	svc.Stop()
}

func TestHousekeeping_StopWithoutStart(t *testing.T) {
	svc := NewHousekeepingService(nil, 0)
	require.Equal(t, time.Hour, svc.Interval)
	svc.Stop()
}

func TestHousekeeping_PurgesExpiredRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice@x.com", "Secret1").User
	_, err := env.mobile.Upsert(ctx, user.ID, "dev1", "ios", nil)
	require.NoError(t, err)

	otp, err := env.otp.Issue(ctx, user, "desktop_login", nil)
	require.NoError(t, err)
	require.NoError(t, env.otp.Consume(ctx, user.ID, "desktop_login", otp.Code))

	svc := NewHousekeepingService(quietLogger(), time.Hour,
		CleanupTask{Name: "otp_codes", Run: env.otp.DeleteExpired},
		CleanupTask{Name: "token_blacklist", Run: env.blacklist.PurgeExpired},
	)
	require.Equal(t, int64(1), svc.RunOnce(ctx))
}
