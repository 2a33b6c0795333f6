package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stagecast/internal/core/ports"
	"stagecast/pkg/backup"
)

// Scheduler periodically archives the recording catalog
type Scheduler struct {
	backupService *backup.BackupService
	catalog       ports.RecordingCatalog
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new archive scheduler
func NewScheduler(
	backupService *backup.BackupService,
	catalog ports.RecordingCatalog,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		backupService: backupService,
		catalog:       catalog,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start starts the archive scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run initial archive
	s.runBackup(ctx)

	for {
		select {
		case <-ticker.C:
			s.runBackup(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the archive scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// runBackup snapshots the catalog to storage
func (s *Scheduler) runBackup(ctx context.Context) {
	s.logger.Info("starting scheduled catalog archive")

	backupData, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect catalog snapshot", "error", err)
		return
	}

	backupName, err := s.backupService.CreateBackup(ctx, backupData)
	if err != nil {
		s.logger.Errorw("failed to create archive", "error", err)
		return
	}

	s.logger.Infow("catalog archive created", "backup_name", backupName,
		"recordings", len(backupData.Recordings))

	if err := s.cleanupOldBackups(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old archives", "error", err)
	}
}

// collectData snapshots every finished recording in the catalog
func (s *Scheduler) collectData(ctx context.Context) (*backup.BackupData, error) {
	data := &backup.BackupData{
		Metadata: make(map[string]interface{}),
	}

	recordings, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	var totalBytes int64
	for _, rec := range recordings {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal recording %s: %w", rec.ID, err)
		}
		data.Recordings = append(data.Recordings, raw)
		totalBytes += rec.SizeBytes
	}

	data.Metadata["recording_count"] = len(recordings)
	data.Metadata["total_bytes"] = totalBytes
	data.Metadata["backup_type"] = "scheduled"

	return data, nil
}

// cleanupOldBackups removes archives older than the retention period
func (s *Scheduler) cleanupOldBackups(ctx context.Context) error {
	backups, err := s.backupService.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}

	cutoffTime := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, backupName := range backups {
		timestamp, err := parseBackupTimestamp(backupName)
		if err != nil {
			s.logger.Warnw("failed to parse archive timestamp", "backup_name", backupName, "error", err)
			continue
		}

		if timestamp.Before(cutoffTime) {
			if err := s.backupService.DeleteBackup(ctx, backupName); err != nil {
				s.logger.Warnw("failed to delete old archive", "backup_name", backupName, "error", err)
				continue
			}
			s.logger.Infow("deleted old archive", "backup_name", backupName, "age", time.Since(timestamp))
		}
	}

	return nil
}

// parseBackupTimestamp extracts the timestamp from a name like backup-20060102-150405.json
func parseBackupTimestamp(name string) (time.Time, error) {
	if len(name) < 22 {
		return time.Time{}, fmt.Errorf("archive name too short: %s", name)
	}
	return time.Parse("20060102-150405", name[7:22])
}
