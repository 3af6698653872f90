// Package termination implements the resumable lease-termination workflow:
// a fixed sequence of stages whose accumulated state is checkpointed on every
// transition, with draft-plus-committed-list aggregators for media, damages
// and invoice line items, and an irreversible terminal commit.
package termination

import (
	"context"

	"github.com/propfolio/vacate/model"
)

// Upload is one file handed to the media-storage collaborator.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SubjectGateway looks up the lease/customer a termination is about. The
// result renders a human-readable label and is not part of workflow state.
type SubjectGateway interface {
	GetSubject(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.SubjectDetails, error)
}

// MediaUploader stores one file with the media-storage collaborator and
// returns the resulting asset reference. Callers batch; one call per file.
type MediaUploader interface {
	Upload(ctx context.Context, rctx *model.RequestContext, up Upload) (model.MediaAsset, error)
}

// InvoiceGateway durably commits a batch of invoice line items.
type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, rctx *model.RequestContext, subjectID string, items []model.InvoiceLineItem) error
}

// LedgerGateway performs the terminal, irreversible commit that ends the
// workflow and marks the lease vacated.
type LedgerGateway interface {
	CommitTermination(ctx context.Context, rctx *model.RequestContext, subjectID string, snapshot model.TerminationState) error
}

// Collaborators bundles the external services the workflow depends on.
type Collaborators struct {
	Subjects SubjectGateway
	Media    MediaUploader
	Invoices InvoiceGateway
	Ledger   LedgerGateway
}
