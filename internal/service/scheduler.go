package service

import (
	"context"
	"time"

	"handoff/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically purges expired dedup keys and transcript rows.
// Retention must stay longer than the providers' redelivery windows so an
// admitted key is never re-admitted while redelivery is still possible.
type Scheduler struct {
	cleaner       RecordCleaner
	retentionDays int
	intervalHours int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(cleaner RecordCleaner, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	if intervalHours <= 0 {
		intervalHours = constants.CleanupSchedulerIntervalHours
	}
	return &Scheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		intervalHours: intervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.intervalHours) * time.Hour)
	defer ticker.Stop()

	s.logger.Info("Starting retention cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running retention cleanup")

	if err := s.cleaner.CleanupOldRecords(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to clean up expired records")
	} else {
		s.logger.Info("Retention cleanup completed")
	}
}
