package progress

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
)

// Tracker records the latest progress of a job and fans events out to
// live subscribers. WriteSnapshot and Broadcast are separate operations
// so implementations may back them differently; Publish performs both.
type Tracker interface {
	WriteSnapshot(ctx context.Context, event domain.ProgressEvent) error
	Broadcast(ctx context.Context, event domain.ProgressEvent)
	Publish(ctx context.Context, event domain.ProgressEvent) error
	Snapshot(ctx context.Context, jobID uuid.UUID) (domain.ProgressEvent, bool)
	Subscribe(jobID uuid.UUID) (<-chan domain.ProgressEvent, func())
}
