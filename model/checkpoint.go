package model

import "time"

// Checkpoint status constants.
const (
	CheckpointStatusActive    = "active"
	CheckpointStatusCompleted = "completed"
	CheckpointStatusAbandoned = "abandoned"
)

// Checkpoint is the persisted (stageKey, snapshot) pair representing
// resumable workflow progress for one subject. One active checkpoint exists
// per (tenant, subject); repeated saves with the same content are idempotent.
type Checkpoint struct {
	SubjectID string           `json:"subject_id"`
	TenantID  string           `json:"tenant_id"`
	StageKey  string           `json:"stage_key"`
	State     TerminationState `json:"state"`
	Status    string           `json:"status"`
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Clone returns a copy of the checkpoint whose state does not alias the
// original's slices.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.State = c.State.Clone()
	return out
}

// CheckpointSummary is a lightweight representation of a checkpoint used in
// list views of in-flight terminations.
type CheckpointSummary struct {
	SubjectID string    `json:"subject_id"`
	StageKey  string    `json:"stage_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TerminationEvent records one entry in a termination's audit trail.
type TerminationEvent struct {
	ID        string         `json:"id"`
	SubjectID string         `json:"subject_id"`
	TenantID  string         `json:"tenant_id"`
	StageKey  string         `json:"stage_key"`
	Event     string         `json:"event"`
	ActorID   string         `json:"actor_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
