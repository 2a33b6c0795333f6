package backup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService_CreateAndRestore(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	svc := NewBackupService(storage, "1.0.0")

	rec1, err := json.Marshal(map[string]interface{}{"id": "rec-1", "size_bytes": 1024})
	require.NoError(t, err)
	rec2, err := json.Marshal(map[string]interface{}{"id": "rec-2", "size_bytes": 2048})
	require.NoError(t, err)

	name, err := svc.CreateBackup(context.Background(), &BackupData{
		Recordings: []json.RawMessage{rec1, rec2},
		Metadata:   map[string]interface{}{"recording_count": 2},
	})
	require.NoError(t, err)
	assert.Contains(t, name, "backup-")

	restored, err := svc.RestoreBackup(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", restored.Version)
	assert.Len(t, restored.Recordings, 2)
	assert.WithinDuration(t, time.Now(), restored.Timestamp, 5*time.Second)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(restored.Recordings[0], &first))
	assert.Equal(t, "rec-1", first["id"])
}

func TestBackupService_ListAndDelete(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	svc := NewBackupService(storage, "1.0.0")

	name, err := svc.CreateBackup(context.Background(), &BackupData{})
	require.NoError(t, err)

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Contains(t, backups, name)

	require.NoError(t, svc.DeleteBackup(context.Background(), name))

	backups, err = svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, backups, name)
}

func TestBackupService_RestoreMissing(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	svc := NewBackupService(storage, "1.0.0")

	_, err = svc.RestoreBackup(context.Background(), "backup-19990101-000000.json")
	assert.Error(t, err)
}
