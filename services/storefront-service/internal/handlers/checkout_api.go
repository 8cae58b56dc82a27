package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/checkout"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"products": h.catalog.Products()})
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": h.catalog.Tiers(), "default": catalog.DefaultTier})
}

type locationRequest struct {
	Plan    string `json:"plan"`
	Product string `json:"product"`
}

func (l locationRequest) query() url.Values {
	q := url.Values{}
	if l.Plan != "" {
		q.Set("plan", l.Plan)
	}
	if l.Product != "" {
		q.Set("product", l.Product)
	}
	return q
}

// CreateView opens a checkout view without rendering the page, for clients
// that build their own checkout UI.
func (h *Handler) CreateView(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	v := h.views.Open(req.query())
	writeJSON(w, http.StatusCreated, v.Snapshot())
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*checkout.View, bool) {
	v, ok := h.views.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "checkout view not found", http.StatusNotFound)
		return nil, false
	}
	return v, true
}

func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (h *Handler) CloseView(w http.ResponseWriter, r *http.Request) {
	if !h.views.Close(mux.Vars(r)["id"]) {
		http.Error(w, "checkout view not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Relocate(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := v.Relocate(req.query()); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

// SetFields applies every field in the body, in name order, and stops at the
// first unknown name.
func (h *Handler) SetFields(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var fields map[string]string
	if err := decodeJSON(r, &fields); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := v.SetFields(fields); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (h *Handler) SelectTier(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := v.SelectTier(catalog.Tier(req.Tier)); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

func (h *Handler) SelectChannel(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req struct {
		Channel string `json:"channel"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Channel == "" {
		http.Error(w, "channel is required", http.StatusBadRequest)
		return
	}
	if err := v.SelectChannel(checkout.Channel(req.Channel)); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

type submitResponse struct {
	View    checkout.Snapshot `json:"view"`
	Widget  *payment.Widget   `json:"widget,omitempty"`
	Missing []string          `json:"missing,omitempty"`
}

// Submit always answers with the view state so the page can show notices;
// the status code says what happened.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	out, err := v.Submit(r.Context())
	var verr *checkout.ValidationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, submitResponse{View: v.Snapshot(), Widget: out.Widget})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, submitResponse{View: v.Snapshot(), Missing: verr.Missing})
	case errors.Is(err, payment.ErrComingSoon):
		writeJSON(w, http.StatusOK, submitResponse{View: v.Snapshot()})
	case errors.Is(err, checkout.ErrAlreadyProcessing):
		writeJSON(w, http.StatusConflict, submitResponse{View: v.Snapshot()})
	case errors.Is(err, checkout.ErrViewClosed):
		http.Error(w, "checkout view closed", http.StatusGone)
	default:
		writeJSON(w, http.StatusBadGateway, submitResponse{View: v.Snapshot()})
	}
}

type successRequest struct {
	AttemptID string `json:"attempt_id"`
	payment.PaymentResult
}

func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req successRequest
	if err := decodeJSON(r, &req); err != nil || req.AttemptID == "" {
		http.Error(w, "attempt_id is required", http.StatusBadRequest)
		return
	}
	if err := v.ReportSuccess(req.AttemptID, req.PaymentResult); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": v.Snapshot()})
}

func (h *Handler) PaymentDismiss(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AttemptID == "" {
		http.Error(w, "attempt_id is required", http.StatusBadRequest)
		return
	}
	if err := v.ReportDismiss(req.AttemptID); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": v.Snapshot()})
}

// PaymentError is posted when the browser could not load the widget script.
func (h *Handler) PaymentError(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req struct {
		AttemptID string `json:"attempt_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AttemptID == "" {
		http.Error(w, "attempt_id is required", http.StatusBadRequest)
		return
	}
	if err := v.ReportScriptFailure(req.AttemptID); err != nil {
		h.writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"view": v.Snapshot()})
}

func (h *Handler) writeViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrUnknownTier), errors.Is(err, checkout.ErrUnknownField):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, checkout.ErrAlreadyProcessing):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, checkout.ErrViewClosed):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, payment.ErrInvalidSignature):
		http.Error(w, "invalid signature", http.StatusBadRequest)
	case errors.Is(err, payment.ErrUnknownAttempt):
		http.Error(w, "payment attempt not found", http.StatusNotFound)
	default:
		h.logger.Error("checkout view operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
