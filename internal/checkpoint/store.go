// Package checkpoint persists lease-termination workflow progress. A
// checkpoint is the (stageKey, snapshot) pair for one subject; saving it on
// every transition is what makes the workflow resumable.
package checkpoint

import (
	"context"

	"github.com/propfolio/vacate/model"
)

// Store persists checkpoints and their audit events.
type Store interface {
	// Load retrieves the checkpoint for a subject, scoped to a tenant.
	// Returns NOT_FOUND if no checkpoint exists; callers treat that as
	// "no progress yet", not as a failure.
	Load(ctx context.Context, tenantID, subjectID string) (model.Checkpoint, error)

	// Save upserts a checkpoint. A checkpoint carrying Version 0 is created
	// with Version 1; otherwise the stored version must match and is
	// incremented, and CONFLICT is returned on a mismatch. Saves with
	// unchanged content are idempotent in effect: the stored stage key and
	// snapshot stay the same.
	Save(ctx context.Context, cp model.Checkpoint) (model.Checkpoint, error)

	// Delete removes a checkpoint and its events. Returns NOT_FOUND if no
	// checkpoint exists for the subject.
	Delete(ctx context.Context, tenantID, subjectID string) error

	// FindActive returns summaries of resumable (active) checkpoints for a
	// tenant, newest first.
	FindActive(ctx context.Context, tenantID string, filters Filters) ([]model.CheckpointSummary, error)

	// AppendEvent adds an entry to a termination's audit trail.
	AppendEvent(ctx context.Context, event model.TerminationEvent) error

	// GetEvents retrieves the audit trail for a subject in timestamp order,
	// scoped to a tenant.
	GetEvents(ctx context.Context, tenantID, subjectID string) ([]model.TerminationEvent, error)
}

// Filters are optional filters for listing checkpoints.
type Filters struct {
	StageKey string
	Limit    int
	Offset   int
}
