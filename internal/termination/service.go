package termination

import (
	"context"
	"time"

	"github.com/propfolio/vacate/internal/checkpoint"
	"github.com/propfolio/vacate/internal/observability"
	"github.com/propfolio/vacate/model"
)

// Service is the request-facing surface of the workflow. Each call loads a
// fresh controller for the subject, applies exactly one operation, and
// returns the resulting descriptor for the frontend to render.
type Service struct {
	store          checkpoint.Store
	collab         Collaborators
	metrics        *observability.Metrics
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
}

// ServiceOption configures optional service behaviour.
type ServiceOption func(*Service)

// WithIdempotencyStore enables submit deduplication. Results are cached
// under the client-supplied idempotency key for ttl.
func WithIdempotencyStore(store IdempotencyStore, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.idempotency = store
		s.idempotencyTTL = ttl
	}
}

// NewService creates the termination service. metrics may be nil.
func NewService(store checkpoint.Store, collab Collaborators, metrics *observability.Metrics, opts ...ServiceOption) *Service {
	s := &Service{store: store, collab: collab, metrics: metrics}
	for _, opt := range opts {
		opt(s)
	}
	if s.idempotencyTTL == 0 {
		s.idempotencyTTL = 24 * time.Hour
	}
	return s
}

// DetailsInput carries the stage-0 fields.
type DetailsInput struct {
	TerminationDate *time.Time `json:"termination_date,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// GetSubject looks up the lease/customer label for the workflow header.
func (s *Service) GetSubject(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.SubjectDetails, error) {
	return s.collab.Subjects.GetSubject(ctx, rctx, subjectID)
}

// Get returns the descriptor for a subject's termination, resuming from the
// stored checkpoint or starting fresh at stage 0 when none exists. Reading
// never persists anything.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.TerminationDescriptor, error) {
	c, err := s.load(ctx, rctx, subjectID)
	if err != nil {
		return model.TerminationDescriptor{}, err
	}
	return c.Descriptor(ctx, true)
}

// List returns the tenant's resumable terminations.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, filters checkpoint.Filters) ([]model.CheckpointSummary, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.store.FindActive(ctx, rctx.TenantID, filters)
}

// SetDetails applies the stage-0 fields and checkpoints.
func (s *Service) SetDetails(ctx context.Context, rctx *model.RequestContext, subjectID string, in DetailsInput) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		return c.SetDetails(ctx, in.TerminationDate, in.Reason, in.Notes)
	})
}

// Next advances the workflow one stage.
func (s *Service) Next(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.TerminationDescriptor, error) {
	return s.transition(ctx, rctx, subjectID, "next", (*Controller).Next)
}

// Previous moves the workflow one stage back.
func (s *Service) Previous(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.TerminationDescriptor, error) {
	return s.transition(ctx, rctx, subjectID, "previous", (*Controller).Previous)
}

// Skip advances without the current stage's optional validation.
func (s *Service) Skip(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.TerminationDescriptor, error) {
	return s.transition(ctx, rctx, subjectID, "skip", (*Controller).Skip)
}

// Submit performs the terminal commit from the final stage. When idemKey is
// set and an idempotency store is configured, a repeated submit with the same
// key returns the cached result instead of hitting the ledger again.
func (s *Service) Submit(ctx context.Context, rctx *model.RequestContext, subjectID string, idemKey string) (model.TerminationDescriptor, error) {
	dedupe := s.idempotency != nil && idemKey != ""
	var key, hash string
	if dedupe {
		key = FormatSubmitKey(rctx.TenantID, subjectID, idemKey)
		hash = hashSubmitRequest(rctx.TenantID, subjectID)
		cached, found, err := s.idempotency.Check(ctx, key, hash)
		if err != nil {
			return model.TerminationDescriptor{}, err
		}
		if found && cached != nil {
			return *cached, nil
		}
	}

	desc, err := s.transition(ctx, rctx, subjectID, "submit", (*Controller).Submit)
	if err != nil {
		return model.TerminationDescriptor{}, err
	}
	if dedupe {
		// Best-effort: a failed cache write only costs deduplication.
		_ = s.idempotency.Store(ctx, key, hash, desc, s.idempotencyTTL)
	}
	return desc, nil
}

// AddMedia uploads a batch of files and appends the resulting assets
// atomically.
func (s *Service) AddMedia(ctx context.Context, rctx *model.RequestContext, subjectID string, uploads []Upload) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		_, err := c.Media().Add(ctx, uploads)
		return err
	})
}

// RemoveMedia drops the media asset at index.
func (s *Service) RemoveMedia(ctx context.Context, rctx *model.RequestContext, subjectID string, index int) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		return c.Media().Remove(ctx, index)
	})
}

// AddDamage stages and commits one damage record.
func (s *Service) AddDamage(ctx context.Context, rctx *model.RequestContext, subjectID string, draft DamageDraft) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		if err := c.Damages().Stage(draft); err != nil {
			return err
		}
		_, err := c.Damages().Commit(ctx)
		return err
	})
}

// RemoveDamage drops the damage record at index.
func (s *Service) RemoveDamage(ctx context.Context, rctx *model.RequestContext, subjectID string, index int) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		return c.Damages().Remove(ctx, index)
	})
}

// AddInvoiceItems stages a batch of line items and commits it to the
// invoicing service in one call. A failed commit changes nothing, so the
// same batch can be resubmitted.
func (s *Service) AddInvoiceItems(ctx context.Context, rctx *model.RequestContext, subjectID string, items []model.InvoiceLineItem) (model.TerminationDescriptor, error) {
	return s.mutate(ctx, rctx, subjectID, func(c *Controller) error {
		if err := c.Invoices().Stage(items...); err != nil {
			return err
		}
		return c.Invoices().Commit(ctx)
	})
}

// Abandon discards a subject's in-flight termination.
func (s *Service) Abandon(ctx context.Context, rctx *model.RequestContext, subjectID string) error {
	c, err := s.load(ctx, rctx, subjectID)
	if err != nil {
		return err
	}
	return c.Abandon(ctx)
}

func (s *Service) load(ctx context.Context, rctx *model.RequestContext, subjectID string) (*Controller, error) {
	if subjectID == "" {
		return nil, model.NewRequiredFieldError("subjectId")
	}
	return Load(ctx, rctx, subjectID, s.store, s.collab)
}

func (s *Service) mutate(ctx context.Context, rctx *model.RequestContext, subjectID string, op func(*Controller) error) (model.TerminationDescriptor, error) {
	c, err := s.load(ctx, rctx, subjectID)
	if err != nil {
		return model.TerminationDescriptor{}, err
	}
	if err := op(c); err != nil {
		return model.TerminationDescriptor{}, err
	}
	return c.Descriptor(ctx, false)
}

func (s *Service) transition(ctx context.Context, rctx *model.RequestContext, subjectID string, name string, op func(*Controller, context.Context) error) (model.TerminationDescriptor, error) {
	c, err := s.load(ctx, rctx, subjectID)
	if err != nil {
		return model.TerminationDescriptor{}, err
	}
	if err := op(c, ctx); err != nil {
		s.metrics.RecordTransition(name, model.ErrorCode(err))
		return model.TerminationDescriptor{}, err
	}
	s.metrics.RecordTransition(name, "ok")
	return c.Descriptor(ctx, false)
}
