package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/utils"

	"go.uber.org/zap"
)

// destinationEntry pairs a destination record with its live transport handle.
type destinationEntry struct {
	dest   domain.Destination
	handle ports.TransportHandle
}

// fanoutService owns every Destination record and is the only component that
// transitions destination status. Connection attempts for different
// destinations run concurrently and never block each other.
type fanoutService struct {
	mu         sync.RWMutex
	entries    map[domain.DestinationID]*destinationEntry
	transports map[domain.ProtocolMethod]ports.DestinationTransport
	observers  []func(domain.Destination)

	logger *zap.SugaredLogger
}

func NewFanoutService(transports []ports.DestinationTransport, logger *zap.SugaredLogger) ports.FanoutManager {
	byMethod := make(map[domain.ProtocolMethod]ports.DestinationTransport, len(transports))
	for _, t := range transports {
		byMethod[t.Method()] = t
	}
	return &fanoutService{
		entries:    make(map[domain.DestinationID]*destinationEntry),
		transports: byMethod,
		logger:     logger,
	}
}

func (f *fanoutService) AddDestination(platform domain.Platform, creds domain.Credentials) (*domain.Destination, error) {
	method := domain.MethodFor(platform)
	if err := validateCredentials(method, creds); err != nil {
		return nil, err
	}

	dest := domain.Destination{
		ID:          domain.DestinationID(utils.GenerateID("dest")),
		Platform:    platform,
		Method:      method,
		Credentials: creds,
		Status:      domain.DestinationPending,
	}

	f.mu.Lock()
	f.entries[dest.ID] = &destinationEntry{dest: dest}
	f.mu.Unlock()

	f.logger.Infow("destination added",
		"destination_id", dest.ID,
		"platform", platform,
		"method", method,
	)
	return &dest, nil
}

func validateCredentials(method domain.ProtocolMethod, creds domain.Credentials) error {
	switch method {
	case domain.MethodWHIP:
		if creds.WHIPURL == "" {
			return fmt.Errorf("%w: whip url required", domain.ErrInvalidCredentials)
		}
	case domain.MethodRTMPRelay:
		if creds.RTMPURL == "" || creds.StreamKey == "" {
			return fmt.Errorf("%w: rtmp url and stream key required", domain.ErrInvalidCredentials)
		}
	}
	return nil
}

// RemoveDestination tears down the destination's own transport before
// deleting its record. Other destinations keep streaming while the teardown
// runs.
func (f *fanoutService) RemoveDestination(ctx context.Context, id domain.DestinationID) error {
	f.mu.Lock()
	entry, ok := f.entries[id]
	if !ok {
		f.mu.Unlock()
		return domain.ErrDestinationNotFound
	}
	handle := entry.handle
	entry.handle = nil
	f.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(ctx); err != nil {
			f.logger.Warnw("destination teardown error", "destination_id", id, "error", err)
		}
	}
	f.transition(id, domain.DestinationStopped, "")

	f.mu.Lock()
	delete(f.entries, id)
	f.mu.Unlock()
	return nil
}

func (f *fanoutService) Destination(id domain.DestinationID) (domain.Destination, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if entry, ok := f.entries[id]; ok {
		return entry.dest, nil
	}
	return domain.Destination{}, domain.ErrDestinationNotFound
}

func (f *fanoutService) ListDestinations() []domain.Destination {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Destination, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry.dest)
	}
	return out
}

func (f *fanoutService) OnStatusChange(fn func(domain.Destination)) {
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

// StartAll connects the requested destinations concurrently. Duplicate and
// unknown ids are dropped up front. The result reports overall success only
// when every valid destination reached connected; callers treat "at least
// one connected" as good enough to stay on air.
func (f *fanoutService) StartAll(ctx context.Context, ids []domain.DestinationID, output ports.CompositeOutput) (ports.FanoutResult, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}

	var valid []domain.DestinationID
	f.mu.RLock()
	for _, id := range utils.Dedupe(raw) {
		if _, ok := f.entries[domain.DestinationID(id)]; ok {
			valid = append(valid, domain.DestinationID(id))
		}
	}
	f.mu.RUnlock()

	if len(valid) == 0 {
		return ports.FanoutResult{}, domain.ErrNoValidDestinations
	}

	var wg sync.WaitGroup
	failures := make(chan domain.DestinationID, len(valid))
	for _, id := range valid {
		wg.Add(1)
		go func(id domain.DestinationID) {
			defer wg.Done()
			if err := f.connect(ctx, id, output); err != nil {
				failures <- id
			}
		}(id)
	}
	wg.Wait()
	close(failures)

	result := ports.FanoutResult{Success: true}
	for id := range failures {
		result.Success = false
		result.Failed = append(result.Failed, id)
	}
	return result, nil
}

// connect drives one destination pending → connecting → connected|failed.
func (f *fanoutService) connect(ctx context.Context, id domain.DestinationID, output ports.CompositeOutput) error {
	f.mu.RLock()
	entry, ok := f.entries[id]
	if !ok {
		f.mu.RUnlock()
		return domain.ErrDestinationNotFound
	}
	dest := entry.dest
	transport, haveTransport := f.transports[dest.Method]
	f.mu.RUnlock()

	if !haveTransport {
		f.transition(id, domain.DestinationFailed, fmt.Sprintf("no transport for method %s", dest.Method))
		return fmt.Errorf("no transport for method %s", dest.Method)
	}
	if !f.transition(id, domain.DestinationConnecting, "") {
		return fmt.Errorf("destination %s cannot connect from status %s", id, dest.Status)
	}

	handle, err := transport.Start(ctx, dest, output)
	if err != nil {
		f.transition(id, domain.DestinationFailed, err.Error())
		f.logger.Errorw("destination connect failed",
			"destination_id", id,
			"platform", dest.Platform,
			"error", err,
		)
		return err
	}

	f.mu.Lock()
	if entry, ok := f.entries[id]; ok {
		entry.handle = handle
	}
	f.mu.Unlock()

	f.transition(id, domain.DestinationConnected, "")
	return nil
}

// StopAll tears every live destination down, marks the records stopped, then
// resets them to pending. The stop destroys the connection, not the record:
// the same destinations stay selectable for the next broadcast.
func (f *fanoutService) StopAll(ctx context.Context) error {
	f.mu.Lock()
	handles := make(map[domain.DestinationID]ports.TransportHandle)
	for id, entry := range f.entries {
		if entry.handle != nil {
			handles[id] = entry.handle
			entry.handle = nil
		}
	}
	f.mu.Unlock()

	var wg sync.WaitGroup
	for id, handle := range handles {
		wg.Add(1)
		go func(id domain.DestinationID, handle ports.TransportHandle) {
			defer wg.Done()
			if err := handle.Stop(ctx); err != nil {
				f.logger.Warnw("destination stop error", "destination_id", id, "error", err)
			}
		}(id, handle)
	}
	wg.Wait()

	f.mu.RLock()
	ids := make([]domain.DestinationID, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	f.mu.RUnlock()
	for _, id := range ids {
		f.transition(id, domain.DestinationStopped, "")
	}

	for _, id := range ids {
		f.reset(id)
	}
	return nil
}

// reset rebuilds a stopped destination record back to pending. This is the
// one status change outside the forward-only table: it starts a fresh
// connection lifecycle rather than continuing the finished one.
func (f *fanoutService) reset(id domain.DestinationID) {
	f.mu.Lock()
	entry, ok := f.entries[id]
	if !ok || entry.dest.Status != domain.DestinationStopped {
		f.mu.Unlock()
		return
	}
	entry.dest.Status = domain.DestinationPending
	entry.dest.LastError = ""
	entry.dest.ConnectedAt = time.Time{}
	snapshot := entry.dest
	observers := make([]func(domain.Destination), len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// transition applies a forward-only status change and notifies observers.
// Illegal transitions are rejected and logged, never applied.
func (f *fanoutService) transition(id domain.DestinationID, to domain.DestinationStatus, reason string) bool {
	f.mu.Lock()
	entry, ok := f.entries[id]
	if !ok {
		f.mu.Unlock()
		return false
	}
	if !entry.dest.Status.CanTransition(to) {
		from := entry.dest.Status
		f.mu.Unlock()
		if from != to {
			f.logger.Warnw("illegal destination transition rejected",
				"destination_id", id,
				"from", from,
				"to", to,
			)
		}
		return false
	}
	entry.dest.Status = to
	entry.dest.LastError = reason
	if to == domain.DestinationConnected {
		entry.dest.ConnectedAt = time.Now()
	}
	snapshot := entry.dest
	observers := make([]func(domain.Destination), len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
	return true
}
