package termination

import (
	"context"

	"github.com/propfolio/vacate/internal/stage"
	"github.com/propfolio/vacate/model"
)

// InvoiceAggregator manages invoice line items. Drafted items sit in a
// transient buffer until Commit issues a single createInvoice call for the
// whole batch; only after that call succeeds do the items move into the
// workflow state. A failed commit leaves the buffer untouched for retry.
type InvoiceAggregator struct {
	c       *Controller
	gateway InvoiceGateway
	buffer  []model.InvoiceLineItem
}

// Stage validates the items and adds them to the transient buffer. The
// first invalid field fails the whole call and nothing is buffered.
func (a *InvoiceAggregator) Stage(items ...model.InvoiceLineItem) error {
	for _, item := range items {
		if item.Description == "" {
			return model.NewRequiredFieldError("description")
		}
		if item.Amount <= 0 {
			return model.NewValidationError(model.FieldError{
				Field:   "amount",
				Message: "amount must be greater than zero",
			})
		}
		if item.Quantity < 1 {
			return model.NewValidationError(model.FieldError{
				Field:   "quantity",
				Message: "quantity must be at least 1",
			})
		}
	}
	a.buffer = append(a.buffer, items...)
	return nil
}

// Buffered returns a copy of the transient buffer.
func (a *InvoiceAggregator) Buffered() []model.InvoiceLineItem {
	out := make([]model.InvoiceLineItem, len(a.buffer))
	copy(out, a.buffer)
	return out
}

// Commit sends the buffered batch to the invoicing service. On success the
// items move into the committed list, the buffer empties, and the checkpoint
// is saved; a failed invoice call leaves everything where it was so the same
// batch can be resubmitted.
func (a *InvoiceAggregator) Commit(ctx context.Context) error {
	if err := a.c.ensureActive(); err != nil {
		return err
	}
	if len(a.buffer) == 0 {
		return model.NewBadRequestError("no invoice items staged for commit")
	}

	batch := a.Buffered()
	if err := a.gateway.CreateInvoice(ctx, a.c.rctx, a.c.subjectID, batch); err != nil {
		return err
	}

	a.c.state.InvoiceItems = append(a.c.state.InvoiceItems, batch...)
	a.buffer = nil
	// The invoice now exists at the collaborator. Losing the checkpoint
	// here would leave the batch looking uncommitted and invite a
	// resubmission that bills twice, so the save is retried.
	if err := a.c.saveCheckpointDurable(ctx, stage.KeyForIndex(a.c.stageIdx)); err != nil {
		return err
	}
	return a.c.appendEvent(ctx, EventInvoiceCommitted, map[string]any{"count": len(batch)})
}
