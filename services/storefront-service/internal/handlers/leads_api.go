package handlers

import (
	"errors"
	"net/http"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/leads"
)

func (h *Handler) ContactLead(w http.ResponseWriter, r *http.Request) {
	var req leads.ContactRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id, err := h.leads.Contact(r.Context(), req)
	h.writeLeadResult(w, id, err)
}

func (h *Handler) DemoLead(w http.ResponseWriter, r *http.Request) {
	var req leads.DemoRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id, err := h.leads.Demo(r.Context(), req)
	h.writeLeadResult(w, id, err)
}

func (h *Handler) writeLeadResult(w http.ResponseWriter, id string, err error) {
	var verr *leads.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing required fields", "missing": verr.Missing})
	default:
		h.logger.Error("lead save failed", "err", err)
		http.Error(w, "failed to save request", http.StatusInternalServerError)
	}
}
