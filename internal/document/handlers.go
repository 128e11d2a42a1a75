package document

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hisab-app/backend-hisab/internal/common"
	"github.com/hisab-app/backend-hisab/internal/pricing"
)

// Handler wires the document service to HTTP.
type Handler struct {
	Svc *Service
}

// Create opens a draft document.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "document service not configured", nil)
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid document payload", validationDetails(verr))
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create document", nil)
		return
	}
	common.JSONData(w, http.StatusCreated, doc)
}

// Get returns a document with items, last published totals, and session state.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// ReplaceItems swaps the document's rows and schedules a recompute.
func (h *Handler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Items []pricing.LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Svc.ReplaceItems(r.Context(), id, payload.Items); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusAccepted, map[string]any{
		"id":             id,
		"items_accepted": len(payload.Items),
	})
}

// Delete discards a draft document.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "document service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid document id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "document not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "document operation failed", nil)
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
