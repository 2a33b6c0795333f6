package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/backup"
)

// RestoreService rebuilds the recording catalog from an archive
type RestoreService struct {
	backupService *backup.BackupService
	catalog       ports.RecordingCatalog
	logger        *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	backupService *backup.BackupService,
	catalog ports.RecordingCatalog,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		backupService: backupService,
		catalog:       catalog,
		logger:        logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	PointInTime       *time.Time
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
	}
}

// RestoreFromBackup loads an archive and writes its recordings back into the catalog
func (rs *RestoreService) RestoreFromBackup(ctx context.Context, backupName string, options RestoreOptions) error {
	rs.logger.Infow("starting catalog restore", "backup_name", backupName,
		"overwrite", options.OverwriteExisting)

	backupData, err := rs.backupService.RestoreBackup(ctx, backupName)
	if err != nil {
		return fmt.Errorf("failed to load archive: %w", err)
	}

	if backupData.Version == "" {
		return fmt.Errorf("invalid archive: missing version")
	}

	restored := 0
	for _, raw := range backupData.Recordings {
		var rec domain.FinishedRecording
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal recording: %w", err)
		}
		if rec.ID == "" {
			return fmt.Errorf("invalid archive: recording without id")
		}

		if !options.OverwriteExisting {
			if _, err := rs.catalog.Get(ctx, rec.ID); err == nil {
				rs.logger.Debugw("skipping existing recording", "recording_id", rec.ID)
				continue
			}
		}

		if err := rs.catalog.Save(ctx, &rec); err != nil {
			return fmt.Errorf("failed to save recording %s: %w", rec.ID, err)
		}
		restored++
	}

	rs.logger.Infow("catalog restore completed", "backup_name", backupName, "restored", restored)
	return nil
}

// FindBackupByTime finds the newest archive at or before the given time
func (rs *RestoreService) FindBackupByTime(ctx context.Context, targetTime time.Time) (string, error) {
	backups, err := rs.backupService.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list archives: %w", err)
	}

	var closestBackup string
	var closestTime time.Time
	var found bool

	for _, backupName := range backups {
		timestamp, err := parseBackupTimestamp(backupName)
		if err != nil {
			continue
		}

		if !timestamp.After(targetTime) {
			if !found || timestamp.After(closestTime) {
				closestBackup = backupName
				closestTime = timestamp
				found = true
			}
		}
	}

	if !found {
		return "", fmt.Errorf("no archive found before or at target time: %v", targetTime)
	}

	return closestBackup, nil
}
