package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CleanupTask deletes one kind of expired record and reports how many rows went.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// HousekeepingService periodically purges expired blacklist entries, OTP
// codes, stale mobile sessions and old system logs. Nothing depends on it
// for correctness.
type HousekeepingService struct {
	Logger   *slog.Logger
	Interval time.Duration
	tasks    []CleanupTask

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(logger *slog.Logger, interval time.Duration, tasks ...CleanupTask) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HousekeepingService{
		Logger:   logger,
		Interval: interval,
		tasks:    tasks,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *HousekeepingService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval.String())
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
		s.Logger.Info("housekeeping service stopped")
	})
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) int64 {
	var total int64
	for _, task := range s.tasks {
		deleted, err := task.Run(ctx)
		if err != nil {
			s.Logger.Error("housekeeping task failed", "task", task.Name, "error", err, "action", "housekeeping")
			continue
		}
		if deleted > 0 {
			s.Logger.Debug("housekeeping task completed", "task", task.Name, "deleted", deleted)
		}
		total += deleted
	}
	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
