package termination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/propfolio/vacate/internal/checkpoint"
	"github.com/propfolio/vacate/internal/stage"
	"github.com/propfolio/vacate/model"
)

// Audit event names.
const (
	EventStageSaved       = "stage_saved"
	EventAdvanced         = "advanced"
	EventSkipped          = "skipped"
	EventReverted         = "reverted"
	EventSubmitted        = "submitted"
	EventMediaAdded       = "media_added"
	EventMediaRemoved     = "media_removed"
	EventDamageAdded      = "damage_added"
	EventDamageRemoved    = "damage_removed"
	EventInvoiceCommitted = "invoice_committed"
)

// Retry budget for checkpoint saves that must not be lost.
const (
	durableSaveAttempts = 3
	durableSaveBackoff  = 50 * time.Millisecond
)

// Controller owns the accumulated TerminationState and the active stage
// index for one subject. It is the sole mutator of that state: aggregators
// operate through it, and every mutation persists a checkpoint before it is
// considered applied. One controller instance serves one request; concurrent
// editors of the same subject are serialized by the store's version check.
type Controller struct {
	rctx      *model.RequestContext
	subjectID string

	state    model.TerminationState
	stageIdx int
	version  int
	status   string

	store  checkpoint.Store
	ledger LedgerGateway

	media    *MediaAggregator
	damages  *DamageAggregator
	invoices *InvoiceAggregator
}

// Load builds a controller for a subject, rehydrating from the stored
// checkpoint when one exists. A missing checkpoint is the normal first-run
// case and yields a fresh controller at stage 0.
func Load(
	ctx context.Context,
	rctx *model.RequestContext,
	subjectID string,
	store checkpoint.Store,
	collab Collaborators,
) (*Controller, error) {
	c := &Controller{
		rctx:      rctx,
		subjectID: subjectID,
		store:     store,
		ledger:    collab.Ledger,
		status:    model.CheckpointStatusActive,
		state:     model.TerminationState{SubjectID: subjectID},
	}
	c.media = &MediaAggregator{c: c, uploader: collab.Media}
	c.damages = &DamageAggregator{c: c}
	c.invoices = &InvoiceAggregator{c: c, gateway: collab.Invoices}

	cp, err := store.Load(ctx, rctx.TenantID, subjectID)
	if err != nil {
		if model.ErrorCode(err) == model.ErrNotFound {
			return c, nil
		}
		return nil, err
	}

	c.state = cp.State.Clone()
	c.state.SubjectID = subjectID
	c.stageIdx = stage.IndexForKey(cp.StageKey)
	c.version = cp.Version
	c.status = cp.Status
	return c, nil
}

// SubjectID returns the subject this controller operates on.
func (c *Controller) SubjectID() string { return c.subjectID }

// StageIndex returns the active stage index.
func (c *Controller) StageIndex() int { return c.stageIdx }

// State returns a copy of the accumulated workflow state.
func (c *Controller) State() model.TerminationState { return c.state.Clone() }

// Status returns the workflow status (active, completed or abandoned).
func (c *Controller) Status() string { return c.status }

// Media returns the media aggregator.
func (c *Controller) Media() *MediaAggregator { return c.media }

// Damages returns the damages aggregator.
func (c *Controller) Damages() *DamageAggregator { return c.damages }

// Invoices returns the invoice-items aggregator.
func (c *Controller) Invoices() *InvoiceAggregator { return c.invoices }

// CanNext reports whether Next is currently a legal transition.
func (c *Controller) CanNext() bool {
	return c.status == model.CheckpointStatusActive && c.stageIdx < stage.LastIndex()
}

// CanPrevious reports whether Previous is currently a legal transition.
func (c *Controller) CanPrevious() bool {
	return c.status == model.CheckpointStatusActive && c.stageIdx > 0
}

// CanSkip reports whether Skip is currently a legal transition.
func (c *Controller) CanSkip() bool { return c.CanNext() }

// CanSubmit reports whether Submit is currently a legal transition.
func (c *Controller) CanSubmit() bool {
	return c.status == model.CheckpointStatusActive && c.stageIdx == stage.LastIndex()
}

// SetDetails applies the stage-0 fields and checkpoints. Setting details is
// permitted from any stage; the cross-field rule is enforced when leaving
// stage 0, not here.
func (c *Controller) SetDetails(ctx context.Context, terminationDate *time.Time, reason, notes string) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	c.state.TerminationDate = terminationDate
	c.state.Reason = reason
	c.state.Notes = notes
	if err := c.saveCheckpoint(ctx, stage.KeyForIndex(c.stageIdx)); err != nil {
		return err
	}
	return c.appendEvent(ctx, EventStageSaved, nil)
}

// Next validates the current stage where it has mandatory rules, checkpoints
// tagged with the next stage's key, and only then advances the index. A
// failed checkpoint save blocks the transition.
func (c *Controller) Next(ctx context.Context) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if !c.CanNext() {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("cannot advance past final stage %q", stage.KeyForIndex(c.stageIdx)),
		)
	}
	if c.stageIdx == 0 {
		if err := c.validateDetails(); err != nil {
			return err
		}
	}
	return c.advance(ctx, EventAdvanced)
}

// Skip advances without the current stage's optional validation. The
// stage-0 cross-field rule is mandatory and is never bypassed.
func (c *Controller) Skip(ctx context.Context) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if !c.CanSkip() {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("cannot skip past final stage %q", stage.KeyForIndex(c.stageIdx)),
		)
	}
	if c.stageIdx == 0 {
		if err := c.validateDetails(); err != nil {
			return err
		}
	}
	return c.advance(ctx, EventSkipped)
}

// Previous checkpoints tagged with the previous stage's key, then moves the
// index back. Moving backward never validates.
func (c *Controller) Previous(ctx context.Context) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if !c.CanPrevious() {
		return model.NewInvalidTransitionError("cannot move back from the first stage")
	}
	prevKey := stage.KeyForIndex(c.stageIdx - 1)
	if err := c.saveCheckpoint(ctx, prevKey); err != nil {
		return err
	}
	c.stageIdx--
	return c.appendEvent(ctx, EventReverted, nil)
}

// Submit performs the terminal commit. Legal only at the final stage; the
// legality check runs before any network call. On success the checkpoint is
// marked completed and the workflow ends; on failure index and state are
// untouched so the user can retry.
func (c *Controller) Submit(ctx context.Context) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if !c.CanSubmit() {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("submit is only legal at the final stage, currently at %q", stage.KeyForIndex(c.stageIdx)),
		)
	}
	if err := c.ledger.CommitTermination(ctx, c.rctx, c.subjectID, c.state.Clone()); err != nil {
		return err
	}

	c.status = model.CheckpointStatusCompleted
	// The ledger commit is irreversible. If the completed status is not
	// recorded, a client retry would fire the commit a second time, so
	// transient save failures are retried rather than surfaced directly.
	if err := c.saveCheckpointDurable(ctx, stage.KeyForIndex(c.stageIdx)); err != nil {
		return err
	}
	return c.appendEvent(ctx, EventSubmitted, nil)
}

// Abandon discards the stored checkpoint and its audit trail. The in-flight
// state is lost deliberately.
func (c *Controller) Abandon(ctx context.Context) error {
	if err := c.ensureActive(); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, c.rctx.TenantID, c.subjectID); err != nil {
		return err
	}
	c.status = model.CheckpointStatusAbandoned
	return nil
}

// Descriptor builds the full frontend view of the workflow, including the
// audit history when withHistory is set.
func (c *Controller) Descriptor(ctx context.Context, withHistory bool) (model.TerminationDescriptor, error) {
	descs := stage.Descriptors()
	stages := make([]model.StageSummary, 0, len(descs))
	for _, d := range descs {
		stages = append(stages, model.StageSummary{
			Key:     d.Key,
			Label:   d.Label,
			Ordinal: d.Ordinal,
			Status:  c.stageStatus(d.Ordinal),
		})
	}

	out := model.TerminationDescriptor{
		SubjectID:        c.subjectID,
		Status:           c.status,
		ActiveStageIndex: c.stageIdx,
		ActiveStageKey:   stage.KeyForIndex(c.stageIdx),
		State:            c.state.Clone(),
		Stages:           stages,
		Transitions: model.TransitionSet{
			Next:     c.CanNext(),
			Previous: c.CanPrevious(),
			Skip:     c.CanSkip(),
			Submit:   c.CanSubmit(),
		},
	}

	if withHistory {
		events, err := c.store.GetEvents(ctx, c.rctx.TenantID, c.subjectID)
		if err != nil {
			return model.TerminationDescriptor{}, err
		}
		history := make([]model.HistoryEntry, 0, len(events))
		for _, evt := range events {
			history = append(history, model.HistoryEntry{
				Stage:     stage.LabelForKey(evt.StageKey),
				Event:     evt.Event,
				Actor:     evt.ActorID,
				Timestamp: evt.Timestamp.Format(time.RFC3339),
			})
		}
		out.History = history
	}
	return out, nil
}

func (c *Controller) stageStatus(ordinal int) string {
	if c.status == model.CheckpointStatusCompleted {
		return model.StageStatusCompleted
	}
	switch {
	case ordinal < c.stageIdx:
		return model.StageStatusCompleted
	case ordinal == c.stageIdx:
		return model.StageStatusInProgress
	default:
		return model.StageStatusFuture
	}
}

// validateDetails enforces the stage-0 cross-field rule: once a termination
// date is set, a reason is mandatory.
func (c *Controller) validateDetails() error {
	if c.state.TerminationDate != nil && c.state.Reason == "" {
		return model.NewValidationError(model.FieldError{
			Field:   "reason",
			Message: "reason is required when a termination date is set",
		})
	}
	return nil
}

func (c *Controller) advance(ctx context.Context, event string) error {
	nextKey := stage.KeyForIndex(c.stageIdx + 1)
	if err := c.saveCheckpoint(ctx, nextKey); err != nil {
		return err
	}
	c.stageIdx++
	return c.appendEvent(ctx, event, nil)
}

func (c *Controller) ensureActive() error {
	if c.status != model.CheckpointStatusActive {
		return model.NewTerminationNotActiveError(
			fmt.Sprintf("termination for subject %q is %s", c.subjectID, c.status),
		)
	}
	return nil
}

func (c *Controller) saveCheckpoint(ctx context.Context, stageKey string) error {
	saved, err := c.store.Save(ctx, model.Checkpoint{
		SubjectID: c.subjectID,
		TenantID:  c.rctx.TenantID,
		StageKey:  stageKey,
		State:     c.state.Clone(),
		Status:    c.status,
		Version:   c.version,
	})
	if err != nil {
		return err
	}
	c.version = saved.Version
	return nil
}

// saveCheckpointDurable retries transient save failures. It runs after an
// irreversible collaborator call has succeeded, where a lost checkpoint
// would let a client retry repeat that call. Version conflicts are not
// retried: a concurrent editor moved the workflow and blind overwrites
// would destroy their progress.
func (c *Controller) saveCheckpointDurable(ctx context.Context, stageKey string) error {
	var err error
	for attempt := 0; attempt < durableSaveAttempts; attempt++ {
		if err = c.saveCheckpoint(ctx, stageKey); err == nil {
			return nil
		}
		if model.ErrorCode(err) == model.ErrConflict {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(durableSaveBackoff):
		}
	}
	return err
}

func (c *Controller) appendEvent(ctx context.Context, event string, data map[string]any) error {
	return c.store.AppendEvent(ctx, model.TerminationEvent{
		ID:        uuid.New().String(),
		SubjectID: c.subjectID,
		TenantID:  c.rctx.TenantID,
		StageKey:  stage.KeyForIndex(c.stageIdx),
		Event:     event,
		ActorID:   c.rctx.ActorID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
