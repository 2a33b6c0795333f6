package ports

import (
	"context"

	"stagecast/internal/core/domain"
)

// RecordingCatalog stores metadata for finished recordings. The binary
// payload is ephemeral per session; only metadata is durable.
type RecordingCatalog interface {
	Save(ctx context.Context, rec *domain.FinishedRecording) error
	Get(ctx context.Context, id domain.RecordingID) (*domain.FinishedRecording, error)
	List(ctx context.Context) ([]*domain.FinishedRecording, error)
	Delete(ctx context.Context, id domain.RecordingID) error
}
