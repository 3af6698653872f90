package model

// Stage display status constants.
const (
	StageStatusCompleted  = "completed"
	StageStatusInProgress = "in_progress"
	StageStatusFuture     = "future"
)

// StageSummary describes one stage of the termination workflow for the
// frontend stepper.
type StageSummary struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Ordinal int    `json:"ordinal"`
	Status  string `json:"status"`
}

// TransitionSet reports which transitions are currently legal. The frontend
// disables the corresponding controls; the server rejects illegal transitions
// regardless.
type TransitionSet struct {
	Next     bool `json:"next"`
	Previous bool `json:"previous"`
	Skip     bool `json:"skip"`
	Submit   bool `json:"submit"`
}

// HistoryEntry is one rendered audit-trail line.
type HistoryEntry struct {
	Stage     string `json:"stage"`
	Event     string `json:"event"`
	Actor     string `json:"actor"`
	Timestamp string `json:"timestamp"`
}

// TerminationDescriptor is the full view of one termination workflow returned
// to the frontend: accumulated state, stepper shape, legality of each
// transition, and the audit history.
type TerminationDescriptor struct {
	SubjectID        string           `json:"subject_id"`
	Status           string           `json:"status"`
	ActiveStageIndex int              `json:"active_stage_index"`
	ActiveStageKey   string           `json:"active_stage_key"`
	State            TerminationState `json:"state"`
	Stages           []StageSummary   `json:"stages"`
	Transitions      TransitionSet    `json:"transitions"`
	History          []HistoryEntry   `json:"history,omitempty"`
}
