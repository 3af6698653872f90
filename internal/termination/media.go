package termination

import (
	"context"

	"github.com/propfolio/vacate/internal/stage"
	"github.com/propfolio/vacate/model"
)

// MediaAggregator manages the committed media list. Uploads within one Add
// call form a batch: every file must upload before any asset is appended, so
// a partial failure appends nothing and the whole batch can be retried.
type MediaAggregator struct {
	c        *Controller
	uploader MediaUploader
}

// Add uploads the batch, joins on all of it, and appends the resulting
// assets atomically. The checkpoint is saved before the append is considered
// applied; on any failure the committed list is unchanged.
func (a *MediaAggregator) Add(ctx context.Context, uploads []Upload) ([]model.MediaAsset, error) {
	if err := a.c.ensureActive(); err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, model.NewRequiredFieldError("files")
	}

	assets := make([]model.MediaAsset, 0, len(uploads))
	for _, up := range uploads {
		asset, err := a.uploader.Upload(ctx, a.c.rctx, up)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	prior := a.c.state.Media
	a.c.state.Media = append(a.c.state.Media, assets...)
	if err := a.c.saveCheckpoint(ctx, stage.KeyForIndex(a.c.stageIdx)); err != nil {
		a.c.state.Media = prior
		return nil, err
	}
	if err := a.c.appendEvent(ctx, EventMediaAdded, map[string]any{"count": len(assets)}); err != nil {
		return nil, err
	}
	return assets, nil
}

// Remove drops the asset at index. An out-of-range index is a no-op, never
// an error; removes are UI-driven and the list may have changed underneath.
func (a *MediaAggregator) Remove(ctx context.Context, index int) error {
	if err := a.c.ensureActive(); err != nil {
		return err
	}
	if index < 0 || index >= len(a.c.state.Media) {
		return nil
	}
	a.c.state.Media = append(a.c.state.Media[:index], a.c.state.Media[index+1:]...)
	if err := a.c.saveCheckpoint(ctx, stage.KeyForIndex(a.c.stageIdx)); err != nil {
		return err
	}
	return a.c.appendEvent(ctx, EventMediaRemoved, map[string]any{"index": index})
}
