package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/propfolio/vacate/internal/termination"
	"github.com/propfolio/vacate/model"
)

// SubjectClient reads lease/customer details from the customer store.
type SubjectClient struct {
	client *Client
}

// NewSubjectClient wraps the shared plumbing for the subjects service.
func NewSubjectClient(client *Client) *SubjectClient {
	return &SubjectClient{client: client}
}

// GetSubject fetches the human-readable details for a subject.
func (s *SubjectClient) GetSubject(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.SubjectDetails, error) {
	var resp struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		UnitLabel string `json:"unit_label"`
	}
	path := "/subjects/" + url.PathEscape(subjectID)
	if err := s.client.doJSON(ctx, rctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.SubjectDetails{}, err
	}
	return model.SubjectDetails{
		SubjectID: resp.ID,
		Label:     resp.Label,
		UnitLabel: resp.UnitLabel,
	}, nil
}

// MediaClient uploads files to the media-storage service.
type MediaClient struct {
	client *Client
}

// NewMediaClient wraps the shared plumbing for the media service.
func NewMediaClient(client *Client) *MediaClient {
	return &MediaClient{client: client}
}

// Upload stores one file and returns the resulting asset reference. A
// failure surfaces as UPLOAD_FAILED unless it is an auth or timeout error.
func (m *MediaClient) Upload(ctx context.Context, rctx *model.RequestContext, up termination.Upload) (model.MediaAsset, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", up.Filename)
	if err != nil {
		return model.MediaAsset{}, fmt.Errorf("backend: build upload form: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return model.MediaAsset{}, fmt.Errorf("backend: write upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.MediaAsset{}, fmt.Errorf("backend: close upload form: %w", err)
	}

	var resp struct {
		URL         string `json:"url"`
		ContentKind string `json:"content_kind"`
	}
	err = m.client.do(ctx, rctx, http.MethodPost, "/media", mw.FormDataContentType(), buf.Bytes(), &resp)
	if err != nil {
		switch model.ErrorCode(err) {
		case model.ErrUnauthorized, model.ErrForbidden, model.ErrBackendTimeout:
			return model.MediaAsset{}, err
		}
		return model.MediaAsset{}, model.NewUploadFailedError(
			fmt.Sprintf("upload of %q failed", up.Filename),
		)
	}
	return model.MediaAsset{URL: resp.URL, Kind: mediaKind(resp.ContentKind)}, nil
}

func mediaKind(contentKind string) model.MediaKind {
	if strings.HasPrefix(contentKind, "video") {
		return model.MediaKindVideo
	}
	return model.MediaKindPhoto
}

// InvoiceClient commits invoice line-item batches to the invoicing service.
type InvoiceClient struct {
	client *Client
}

// NewInvoiceClient wraps the shared plumbing for the invoicing service.
func NewInvoiceClient(client *Client) *InvoiceClient {
	return &InvoiceClient{client: client}
}

// CreateInvoice durably commits one batch of line items for a subject.
func (i *InvoiceClient) CreateInvoice(ctx context.Context, rctx *model.RequestContext, subjectID string, items []model.InvoiceLineItem) error {
	body := struct {
		Items []model.InvoiceLineItem `json:"items"`
	}{Items: items}
	path := "/subjects/" + url.PathEscape(subjectID) + "/invoices"
	return i.client.doJSON(ctx, rctx, http.MethodPost, path, body, nil)
}

// LedgerClient performs the terminal commit against the property ledger.
type LedgerClient struct {
	client *Client
}

// NewLedgerClient wraps the shared plumbing for the ledger service.
func NewLedgerClient(client *Client) *LedgerClient {
	return &LedgerClient{client: client}
}

// CommitTermination irreversibly marks the lease vacated with the full
// accumulated snapshot.
func (l *LedgerClient) CommitTermination(ctx context.Context, rctx *model.RequestContext, subjectID string, snapshot model.TerminationState) error {
	path := "/subjects/" + url.PathEscape(subjectID) + "/termination"
	return l.client.doJSON(ctx, rctx, http.MethodPost, path, snapshot, nil)
}
