package backup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stagecast/internal/core/domain"
	"stagecast/internal/infrastructure/repositories/memory"
	"stagecast/pkg/backup"
)

func newTestRecording(id string, endedAt time.Time) *domain.FinishedRecording {
	return &domain.FinishedRecording{
		ID:        domain.RecordingID(id),
		Path:      "/var/lib/stagecast/recordings/" + id + ".mkv",
		Duration:  42 * time.Second,
		SizeBytes: 1 << 20,
		EndedAt:   endedAt,
	}
}

func TestSchedulerArchiveAndRestore(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewBackupService(storage, "1.0.0")

	catalog := memory.NewMemoryRecordingCatalog()
	require.NoError(t, catalog.Save(ctx, newTestRecording("rec-1", time.Now().Add(-time.Hour))))
	require.NoError(t, catalog.Save(ctx, newTestRecording("rec-2", time.Now())))

	sched := NewScheduler(svc, catalog, Config{Interval: time.Hour, RetentionDays: 7}, log)
	sched.runBackup(ctx)

	backups, err := svc.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	restoreCatalog := memory.NewMemoryRecordingCatalog()
	restorer := NewRestoreService(svc, restoreCatalog, log)
	require.NoError(t, restorer.RestoreFromBackup(ctx, backups[0], DefaultRestoreOptions()))

	restored, err := restoreCatalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, restored, 2)

	rec, err := restoreCatalog.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), rec.SizeBytes)
	assert.Equal(t, 42*time.Second, rec.Duration)
}

func TestRestoreSkipsExistingByDefault(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewBackupService(storage, "1.0.0")

	catalog := memory.NewMemoryRecordingCatalog()
	original := newTestRecording("rec-1", time.Now())
	require.NoError(t, catalog.Save(ctx, original))

	sched := NewScheduler(svc, catalog, Config{Interval: time.Hour, RetentionDays: 7}, log)
	sched.runBackup(ctx)

	backups, err := svc.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	// Mutate the live entry, then restore without overwrite
	mutated := newTestRecording("rec-1", time.Now())
	mutated.SizeBytes = 99
	require.NoError(t, catalog.Save(ctx, mutated))

	restorer := NewRestoreService(svc, catalog, log)
	require.NoError(t, restorer.RestoreFromBackup(ctx, backups[0], DefaultRestoreOptions()))

	rec, err := catalog.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.SizeBytes)

	// With overwrite the archived copy wins
	require.NoError(t, restorer.RestoreFromBackup(ctx, backups[0],
		RestoreOptions{OverwriteExisting: true}))

	rec, err = catalog.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), rec.SizeBytes)
}

func TestFindBackupByTime(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	storage, err := backup.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	svc := backup.NewBackupService(storage, "1.0.0")

	restorer := NewRestoreService(svc, memory.NewMemoryRecordingCatalog(), log)

	_, err = restorer.FindBackupByTime(ctx, time.Now())
	assert.Error(t, err)

	sched := NewScheduler(svc, memory.NewMemoryRecordingCatalog(),
		Config{Interval: time.Hour, RetentionDays: 7}, log)
	sched.runBackup(ctx)

	name, err := restorer.FindBackupByTime(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Contains(t, name, "backup-")
}
