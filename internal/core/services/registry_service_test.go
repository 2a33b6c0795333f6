package services

import (
	"testing"
	"time"

	"stagecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) *registryService {
	t.Helper()
	return NewRegistryService(zaptest.NewLogger(t).Sugar()).(*registryService)
}

func TestRegistry_AddAndSnapshotOrder(t *testing.T) {
	reg := newTestRegistry(t)

	for _, id := range []string{"host", "guest-1", "guest-2"} {
		err := reg.Add(&domain.ParticipantStream{
			ID:          domain.ParticipantID(id),
			DisplayName: id,
			Role:        domain.RoleGuest,
		})
		require.NoError(t, err)
	}

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, domain.ParticipantID("host"), snap[0].ID)
	assert.Equal(t, domain.ParticipantID("guest-2"), snap[2].ID)
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(&domain.ParticipantStream{
		ID:           "p1",
		VideoEnabled: true,
	}))

	snap := reg.Snapshot()
	snap[0].VideoEnabled = false

	got, err := reg.Get("p1")
	require.NoError(t, err)
	assert.True(t, got.VideoEnabled, "snapshot mutation must not reach the registry")
}

func TestRegistry_MuteUnmute(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(&domain.ParticipantStream{
		ID:           "p1",
		AudioEnabled: true,
		VideoEnabled: true,
	}))

	require.NoError(t, reg.SetAudioEnabled("p1", false))
	require.NoError(t, reg.SetVideoEnabled("p1", false))

	got, _ := reg.Get("p1")
	assert.False(t, got.AudioEnabled)
	assert.False(t, got.VideoEnabled)

	assert.ErrorIs(t, reg.SetAudioEnabled("ghost", true), domain.ErrParticipantNotFound)
}

func TestRegistry_RemoveRunsCleanupHooks(t *testing.T) {
	reg := newTestRegistry(t)

	var cleaned []domain.ParticipantID
	reg.OnRemove(func(id domain.ParticipantID) {
		cleaned = append(cleaned, id)
	})

	require.NoError(t, reg.Add(&domain.ParticipantStream{ID: "p1"}))
	require.NoError(t, reg.Remove("p1"))

	assert.Equal(t, []domain.ParticipantID{"p1"}, cleaned)
	assert.ErrorIs(t, reg.Remove("p1"), domain.ErrParticipantNotFound)

	assert.Empty(t, reg.Snapshot())
}

func TestRegistry_ScreenShareActive(t *testing.T) {
	reg := newTestRegistry(t)
	assert.False(t, reg.ScreenShareActive())

	require.NoError(t, reg.Add(&domain.ParticipantStream{
		ID:           "share",
		ScreenShare:  true,
		VideoEnabled: true,
		JoinedAt:     time.Now(),
	}))
	assert.True(t, reg.ScreenShareActive())

	require.NoError(t, reg.SetVideoEnabled("share", false))
	assert.False(t, reg.ScreenShareActive())
}

func TestRegistry_DefaultQuality(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Add(&domain.ParticipantStream{ID: "p1"}))

	got, _ := reg.Get("p1")
	assert.Equal(t, domain.QualityUnknown, got.Quality)

	require.NoError(t, reg.SetQuality("p1", domain.QualityGood))
	got, _ = reg.Get("p1")
	assert.Equal(t, domain.QualityGood, got.Quality)
}
