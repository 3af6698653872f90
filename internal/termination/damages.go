package termination

import (
	"context"

	"github.com/propfolio/vacate/internal/stage"
	"github.com/propfolio/vacate/model"
)

// DamageDraft is the transient sub-form record for one damage before it is
// committed to the workflow state.
type DamageDraft struct {
	Description string             `json:"description"`
	Notes       string             `json:"notes,omitempty"`
	Media       []model.MediaAsset `json:"media,omitempty"`
}

// DamageAggregator manages the committed damages list through a transient
// draft. Stage validates the draft without touching the committed list;
// Commit appends a copy and resets the draft.
type DamageAggregator struct {
	c     *Controller
	draft DamageDraft
}

// Stage validates the draft and holds it for commit. A failed validation
// leaves both the draft and the committed list unchanged.
func (a *DamageAggregator) Stage(draft DamageDraft) error {
	if draft.Description == "" {
		return model.NewRequiredFieldError("description")
	}
	a.draft = draft
	return nil
}

// Draft returns the currently staged draft.
func (a *DamageAggregator) Draft() DamageDraft { return a.draft }

// Commit appends the staged draft to the committed list and resets the
// draft. The checkpoint is saved before the append is considered applied.
func (a *DamageAggregator) Commit(ctx context.Context) (model.DamageRecord, error) {
	if err := a.c.ensureActive(); err != nil {
		return model.DamageRecord{}, err
	}
	if a.draft.Description == "" {
		return model.DamageRecord{}, model.NewRequiredFieldError("description")
	}

	rec := model.DamageRecord{
		Description: a.draft.Description,
		Notes:       a.draft.Notes,
	}
	if a.draft.Media != nil {
		rec.Media = make([]model.MediaAsset, len(a.draft.Media))
		copy(rec.Media, a.draft.Media)
	}

	prior := a.c.state.Damages
	a.c.state.Damages = append(a.c.state.Damages, rec)
	if err := a.c.saveCheckpoint(ctx, stage.KeyForIndex(a.c.stageIdx)); err != nil {
		a.c.state.Damages = prior
		return model.DamageRecord{}, err
	}
	a.draft = DamageDraft{}
	if err := a.c.appendEvent(ctx, EventDamageAdded, map[string]any{"description": rec.Description}); err != nil {
		return model.DamageRecord{}, err
	}
	return rec, nil
}

// Remove drops the damage record at index. Out-of-range indices are a no-op.
func (a *DamageAggregator) Remove(ctx context.Context, index int) error {
	if err := a.c.ensureActive(); err != nil {
		return err
	}
	if index < 0 || index >= len(a.c.state.Damages) {
		return nil
	}
	a.c.state.Damages = append(a.c.state.Damages[:index], a.c.state.Damages[index+1:]...)
	if err := a.c.saveCheckpoint(ctx, stage.KeyForIndex(a.c.stageIdx)); err != nil {
		return err
	}
	return a.c.appendEvent(ctx, EventDamageRemoved, map[string]any{"index": index})
}
