package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type readyMixer struct {
	ready bool
}

func (m *readyMixer) AddSource(domain.ParticipantID, domain.AudioSource) {}
func (m *readyMixer) RemoveSource(domain.ParticipantID)                  {}
func (m *readyMixer) SetGain(domain.ParticipantID, float64)              {}
func (m *readyMixer) SetEnabled(domain.ParticipantID, bool)              {}
func (m *readyMixer) Speaking(domain.ParticipantID) bool                 { return false }
func (m *readyMixer) Level(domain.ParticipantID) float64                 { return 0 }
func (m *readyMixer) Start(context.Context) error                        { return nil }
func (m *readyMixer) Stop()                                              {}
func (m *readyMixer) Ready() bool                                        { return m.ready }

type fakeProvisioning struct {
	mu             sync.Mutex
	created        [][]domain.Destination
	listCalls      int
	listEmptyFirst int
	liveIDs        []domain.DestinationID
	ended          int
	createErr      error
}

func (p *fakeProvisioning) CreateBroadcastObjects(ctx context.Context, sessionID domain.SessionID, dests []domain.Destination) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return p.createErr
	}
	p.created = append(p.created, dests)
	return nil
}

func (p *fakeProvisioning) ListDestinations(ctx context.Context, sessionID domain.SessionID) ([]domain.DestinationID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listCalls <= p.listEmptyFirst || len(p.created) == 0 {
		return nil, nil
	}
	var ids []domain.DestinationID
	for _, d := range p.created[len(p.created)-1] {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (p *fakeProvisioning) TransitionToLive(ctx context.Context, id domain.DestinationID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liveIDs = append(p.liveIDs, id)
	return nil
}

func (p *fakeProvisioning) EndBroadcast(ctx context.Context, sessionID domain.SessionID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended++
	return nil
}

func (p *fakeProvisioning) liveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.liveIDs)
}

type fakeRecorder struct {
	mu       sync.Mutex
	active   bool
	starts   int
	stops    int
	startErr error
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	r.active = true
	return nil
}

func (r *fakeRecorder) Pause() error  { return nil }
func (r *fakeRecorder) Resume() error { return nil }

func (r *fakeRecorder) Stop(ctx context.Context) (*domain.FinishedRecording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.active = false
	return &domain.FinishedRecording{}, nil
}

func (r *fakeRecorder) Session() domain.RecordingSession { return domain.RecordingSession{} }

func (r *fakeRecorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

type broadcastFixture struct {
	orch         *broadcastService
	compositor   *compositorService
	fanout       *fanoutService
	whip         *fakeTransport
	relay        *fakeTransport
	provisioning *fakeProvisioning
	recorder     *fakeRecorder
}

func newBroadcastFixture(t *testing.T, cfg BroadcastConfig) *broadcastFixture {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	compositor := newTestCompositor(t)
	compositor.output.MarkReady()

	whip := newFakeTransport(domain.MethodWHIP)
	relay := newFakeTransport(domain.MethodRTMPRelay)
	fanout := NewFanoutService([]ports.DestinationTransport{whip, relay}, logger).(*fanoutService)

	provisioning := &fakeProvisioning{}
	recorder := &fakeRecorder{}
	cfg.PollInterval = 10 * time.Millisecond

	orch := NewBroadcastService(cfg, compositor, &readyMixer{ready: true}, fanout, provisioning, recorder, logger).(*broadcastService)
	return &broadcastFixture{
		orch:         orch,
		compositor:   compositor,
		fanout:       fanout,
		whip:         whip,
		relay:        relay,
		provisioning: provisioning,
		recorder:     recorder,
	}
}

func TestGoLive_MixedProtocolDestinations(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{CountdownSeconds: 0})
	yt, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	fb, _ := fx.fanout.AddDestination(domain.PlatformFacebook, relayCreds())

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{yt.ID, fb.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.BroadcastLive, fx.orch.Session().State)
	assert.Equal(t, 1, fx.whip.startCount())
	assert.Equal(t, 1, fx.relay.startCount())

	for _, id := range []domain.DestinationID{yt.ID, fb.ID} {
		dest, err := fx.fanout.Destination(id)
		require.NoError(t, err)
		assert.Equal(t, domain.DestinationConnected, dest.Status)
	}

	// Visibility flips are async best-effort.
	require.Eventually(t, func() bool { return fx.provisioning.liveCount() == 2 }, time.Second, 10*time.Millisecond)

	// Recording auto-starts with the broadcast.
	assert.True(t, fx.recorder.Active())
}

func TestGoLive_NoValidDestinations(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{"ghost"})
	assert.ErrorIs(t, err, domain.ErrNoValidDestinations)
	assert.Equal(t, domain.BroadcastIdle, fx.orch.Session().State)
}

func TestGoLive_CompositeNotReady(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	logger := zaptest.NewLogger(t).Sugar()
	notReady := NewBroadcastService(BroadcastConfig{PollInterval: 10 * time.Millisecond},
		newTestCompositor(t), &readyMixer{ready: true}, fx.fanout, fx.provisioning, fx.recorder, logger).(*broadcastService)

	err := notReady.GoLive(context.Background(), []domain.DestinationID{d.ID})
	assert.ErrorIs(t, err, domain.ErrCompositeUnavailable)
	assert.Equal(t, domain.BroadcastIdle, notReady.Session().State)
}

func TestGoLive_ProvisioningTimeoutAbortsBeforeFanout(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{PollAttempts: 3})
	fx.provisioning.createErr = errors.New("api down")
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID})
	require.Error(t, err)
	assert.Equal(t, domain.BroadcastIdle, fx.orch.Session().State)

	// Nothing was started that would need teardown.
	assert.Zero(t, fx.whip.startCount())
	dest, _ := fx.fanout.Destination(d.ID)
	assert.Equal(t, domain.DestinationPending, dest.Status)
}

func TestGoLive_PollsUntilObjectsAppear(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{PollAttempts: 5})
	fx.provisioning.listEmptyFirst = 3
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fx.provisioning.listCalls, 4)
	assert.Equal(t, domain.BroadcastLive, fx.orch.Session().State)
}

func TestGoLive_AlreadyLive(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyLive)
}

func TestGoLive_PartialConnectStillGoesLive(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d1, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	d2, _ := fx.fanout.AddDestination(domain.PlatformTwitch, whipCreds())
	fx.whip.failFor[d2.ID] = errors.New("ingest rejected")

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{d1.ID, d2.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastLive, fx.orch.Session().State)
}

func TestGoLive_AllConnectsFailedAborts(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	fx.whip.failFor[d.ID] = errors.New("ingest rejected")

	err := fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID})
	assert.ErrorIs(t, err, domain.ErrNoValidDestinations)
	assert.Equal(t, domain.BroadcastIdle, fx.orch.Session().State)
}

func TestGoLive_RecordingFailureIsNonFatal(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	fx.recorder.startErr = errors.New("disk full")
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))
	assert.Equal(t, domain.BroadcastLive, fx.orch.Session().State)
	assert.False(t, fx.recorder.Active())
}

func TestGoLive_CountdownOverlayThenLive(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{CountdownSeconds: 1})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))
	assert.Equal(t, domain.BroadcastCountdown, fx.orch.Session().State)

	// Feed is already flowing while the countdown overlay shows.
	assert.Equal(t, 1, fx.whip.startCount())
	overlay := fx.compositor.overlays.Snapshot()
	require.NotNil(t, overlay.Countdown)
	assert.Equal(t, 1, overlay.Countdown.Remaining)

	require.Eventually(t, func() bool {
		return fx.orch.Session().State == domain.BroadcastLive
	}, 3*time.Second, 20*time.Millisecond)
	assert.Nil(t, fx.compositor.overlays.Snapshot().Countdown)
}

func TestEndBroadcast_FromLive(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))

	require.NoError(t, fx.orch.EndBroadcast(context.Background()))
	assert.Equal(t, domain.BroadcastIdle, fx.orch.Session().State)
	assert.Equal(t, 1, fx.recorder.stops)
	assert.Equal(t, int32(1), fx.whip.stops.Load())

	fx.provisioning.mu.Lock()
	defer fx.provisioning.mu.Unlock()
	assert.Equal(t, 1, fx.provisioning.ended)
}

func TestEndBroadcast_DuringCountdownCancelsIt(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{CountdownSeconds: 30})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))
	require.Equal(t, domain.BroadcastCountdown, fx.orch.Session().State)

	require.NoError(t, fx.orch.EndBroadcast(context.Background()))
	assert.Equal(t, domain.BroadcastIdle, fx.orch.Session().State)
	assert.Nil(t, fx.compositor.overlays.Snapshot().Countdown)
	// The live transition never happened, so recording never started.
	assert.Zero(t, fx.recorder.starts)
}

func TestEndBroadcast_DestinationsCarryNextBroadcast(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())

	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))
	require.NoError(t, fx.orch.EndBroadcast(context.Background()))

	// Ending tears the connection down but keeps the record selectable.
	dest, err := fx.fanout.Destination(d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationPending, dest.Status)

	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))
	assert.Equal(t, domain.BroadcastLive, fx.orch.Session().State)
	assert.Equal(t, 2, fx.whip.startCount())

	dest, err = fx.fanout.Destination(d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationConnected, dest.Status)
}

func TestEndBroadcast_ClearsSessionForReuse(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	d, _ := fx.fanout.AddDestination(domain.PlatformYouTube, whipCreds())
	require.NoError(t, fx.orch.GoLive(context.Background(), []domain.DestinationID{d.ID}))

	require.NoError(t, fx.orch.EndBroadcast(context.Background()))
	sess := fx.orch.Session()
	assert.Equal(t, domain.BroadcastIdle, sess.State)
	assert.Empty(t, sess.DestinationIDs)
	assert.Empty(t, sess.VideoProducerID)
	assert.Empty(t, sess.AudioProducerID)
}

func TestEndBroadcast_WhenIdle(t *testing.T) {
	fx := newBroadcastFixture(t, BroadcastConfig{})
	err := fx.orch.EndBroadcast(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotLive)
}
