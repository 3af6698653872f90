package model

import "time"

// MediaKind classifies an uploaded media asset.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

// MediaAsset is a stored media file attached to a termination or a damage
// record. The URL points into the media-storage service; assets are uploaded
// there first and only referenced here.
type MediaAsset struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// DamageRecord documents damage found during the move-out inspection.
type DamageRecord struct {
	Description string       `json:"description"`
	Notes       string       `json:"notes,omitempty"`
	Media       []MediaAsset `json:"media,omitempty"`
}

// InvoiceLineItem is a single line of the move-out invoice. Items listed on
// a TerminationState have already been durably committed to the invoicing
// service; drafts live in the aggregator's buffer until then.
type InvoiceLineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Quantity    int     `json:"quantity"`
}

// TerminationState is the accumulated state of one lease-termination
// workflow. It is owned by a single controller instance and mutated only
// through controller and aggregator operations.
type TerminationState struct {
	SubjectID       string            `json:"subject_id"`
	TerminationDate *time.Time        `json:"termination_date,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Media           []MediaAsset      `json:"media,omitempty"`
	Damages         []DamageRecord    `json:"damages,omitempty"`
	InvoiceItems    []InvoiceLineItem `json:"invoice_items,omitempty"`
}

// Clone returns a deep copy of the state. Snapshots handed to collaborators
// and checkpoints must not alias the controller-owned slices.
func (s TerminationState) Clone() TerminationState {
	out := s
	if s.TerminationDate != nil {
		d := *s.TerminationDate
		out.TerminationDate = &d
	}
	if s.Media != nil {
		out.Media = make([]MediaAsset, len(s.Media))
		copy(out.Media, s.Media)
	}
	if s.Damages != nil {
		out.Damages = make([]DamageRecord, len(s.Damages))
		for i, d := range s.Damages {
			out.Damages[i] = d
			if d.Media != nil {
				out.Damages[i].Media = make([]MediaAsset, len(d.Media))
				copy(out.Damages[i].Media, d.Media)
			}
		}
	}
	if s.InvoiceItems != nil {
		out.InvoiceItems = make([]InvoiceLineItem, len(s.InvoiceItems))
		copy(out.InvoiceItems, s.InvoiceItems)
	}
	return out
}

// SubjectDetails is the read-only subject lookup result used to render a
// human-readable label for the lease/customer being processed.
type SubjectDetails struct {
	SubjectID string `json:"subject_id"`
	Label     string `json:"label"`
	UnitLabel string `json:"unit_label,omitempty"`
}
