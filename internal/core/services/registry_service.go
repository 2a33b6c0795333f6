package services

import (
	"sync"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"

	"go.uber.org/zap"
)

// registryService is the sole owner of participant existence and state. The
// compositor and mixer never hold live references; they take value snapshots
// once per frame.
type registryService struct {
	mu           sync.RWMutex
	participants map[domain.ParticipantID]*domain.ParticipantStream
	order        []domain.ParticipantID

	onRemove []func(domain.ParticipantID)

	logger *zap.SugaredLogger
}

func NewRegistryService(logger *zap.SugaredLogger) ports.SourceRegistry {
	return &registryService{
		participants: make(map[domain.ParticipantID]*domain.ParticipantStream),
		logger:       logger,
	}
}

// OnRemove registers a cleanup hook run on every removal path, including
// abnormal disconnect. The mixer uses this to tear down analysis state.
func (r *registryService) OnRemove(fn func(domain.ParticipantID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

func (r *registryService) Add(p *domain.ParticipantStream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	if p.Quality == "" {
		p.Quality = domain.QualityUnknown
	}

	if _, exists := r.participants[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.participants[p.ID] = p

	r.logger.Infow("participant added",
		"participant_id", p.ID,
		"display_name", p.DisplayName,
		"role", p.Role,
	)
	return nil
}

func (r *registryService) Remove(id domain.ParticipantID) error {
	r.mu.Lock()
	if _, ok := r.participants[id]; !ok {
		r.mu.Unlock()
		return domain.ErrParticipantNotFound
	}
	delete(r.participants, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	hooks := make([]func(domain.ParticipantID), len(r.onRemove))
	copy(hooks, r.onRemove)
	r.mu.Unlock()

	// Hooks run outside the lock; they may call back into the registry.
	for _, fn := range hooks {
		fn(id)
	}

	r.logger.Infow("participant removed", "participant_id", id)
	return nil
}

func (r *registryService) Get(id domain.ParticipantID) (domain.ParticipantStream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return domain.ParticipantStream{}, domain.ErrParticipantNotFound
	}
	return *p, nil
}

func (r *registryService) SetVideoEnabled(id domain.ParticipantID, enabled bool) error {
	return r.mutate(id, func(p *domain.ParticipantStream) {
		p.VideoEnabled = enabled
	})
}

func (r *registryService) SetAudioEnabled(id domain.ParticipantID, enabled bool) error {
	return r.mutate(id, func(p *domain.ParticipantStream) {
		p.AudioEnabled = enabled
	})
}

func (r *registryService) SetRole(id domain.ParticipantID, role domain.Role) error {
	return r.mutate(id, func(p *domain.ParticipantStream) {
		p.Role = role
	})
}

func (r *registryService) SetQuality(id domain.ParticipantID, level domain.QualityLevel) error {
	return r.mutate(id, func(p *domain.ParticipantStream) {
		p.Quality = level
	})
}

func (r *registryService) mutate(id domain.ParticipantID, fn func(*domain.ParticipantStream)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	fn(p)
	return nil
}

// Snapshot returns value copies of all participants in join order. Join order
// is the registry ordering layouts key off (spotlight's first participant).
func (r *registryService) Snapshot() []domain.ParticipantStream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ParticipantStream, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.participants[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (r *registryService) ScreenShareActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.participants {
		if p.ScreenShare && p.VideoEnabled {
			return true
		}
	}
	return false
}
