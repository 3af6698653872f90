package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/propfolio/vacate/internal/checkpoint"
	"github.com/propfolio/vacate/internal/termination"
	"github.com/propfolio/vacate/model"
)

func handleTerminationList(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := checkpoint.Filters{
			StageKey: r.URL.Query().Get("stage"),
			Limit:    queryInt(r, "limit", 20),
			Offset:   queryInt(r, "offset", 0),
		}

		summaries, err := svc.List(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   summaries,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func handleTerminationGet(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		desc, err := svc.Get(r.Context(), rctx, chi.URLParam(r, "subjectId"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleTerminationDetails(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		var in termination.DetailsInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		desc, err := svc.SetDetails(r.Context(), rctx, chi.URLParam(r, "subjectId"), in)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleTransition(svc *termination.Service, op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		subjectID := chi.URLParam(r, "subjectId")

		var desc model.TerminationDescriptor
		var err error
		switch op {
		case "next":
			desc, err = svc.Next(r.Context(), rctx, subjectID)
		case "previous":
			desc, err = svc.Previous(r.Context(), rctx, subjectID)
		case "skip":
			desc, err = svc.Skip(r.Context(), rctx, subjectID)
		case "submit":
			desc, err = svc.Submit(r.Context(), rctx, subjectID, r.Header.Get("X-Idempotency-Key"))
		default:
			WriteError(w, r, model.NewBadRequestError("unknown transition"))
			return
		}
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleMediaAdd(svc *termination.Service, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid or oversized multipart body"))
			return
		}

		var uploads []termination.Upload
		if r.MultipartForm != nil {
			for _, headers := range r.MultipartForm.File {
				for _, fh := range headers {
					f, err := fh.Open()
					if err != nil {
						WriteError(w, r, model.NewBadRequestError("unreadable file part"))
						return
					}
					data, err := io.ReadAll(f)
					f.Close()
					if err != nil {
						WriteError(w, r, model.NewBadRequestError("unreadable file part"))
						return
					}
					uploads = append(uploads, termination.Upload{
						Filename:    fh.Filename,
						ContentType: fh.Header.Get("Content-Type"),
						Data:        data,
					})
				}
			}
		}

		desc, err := svc.AddMedia(r.Context(), rctx, chi.URLParam(r, "subjectId"), uploads)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleMediaRemove(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		index, err := pathIndex(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		desc, err := svc.RemoveMedia(r.Context(), rctx, chi.URLParam(r, "subjectId"), index)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleDamageAdd(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		var draft termination.DamageDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		desc, err := svc.AddDamage(r.Context(), rctx, chi.URLParam(r, "subjectId"), draft)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleDamageRemove(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		index, err := pathIndex(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		desc, err := svc.RemoveDamage(r.Context(), rctx, chi.URLParam(r, "subjectId"), index)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleInvoiceItemsAdd(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			Items []model.InvoiceLineItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
			return
		}

		desc, err := svc.AddInvoiceItems(r.Context(), rctx, chi.URLParam(r, "subjectId"), body.Items)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleTerminationAbandon(svc *termination.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		if err := svc.Abandon(r.Context(), rctx, chi.URLParam(r, "subjectId")); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
	}
}

// --- helpers ---

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pathIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, model.NewBadRequestError("index must be a non-negative integer")
	}
	return index, nil
}
