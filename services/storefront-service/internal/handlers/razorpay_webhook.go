package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/orders"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/storage"
)

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// RazorpayWebhook handles provider webhooks. The signature is the only
// authentication.
func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		http.Error(w, "razorpay webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sig := strings.TrimSpace(r.Header.Get("X-Razorpay-Signature"))
	if sig == "" {
		http.Error(w, "missing X-Razorpay-Signature header", http.StatusBadRequest)
		return
	}
	eventID := strings.TrimSpace(r.Header.Get("X-Razorpay-Event-Id"))
	if eventID == "" {
		http.Error(w, "missing X-Razorpay-Event-Id header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !payment.VerifyWebhookSignature(body, sig, h.webhookSecret) {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var evt razorpayEvent
	if err := json.Unmarshal(body, &evt); err != nil || evt.Event == "" {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}
	h.logger.Info("payment provider event received",
		"provider", "razorpay",
		"provider_event_id", eventID,
		"event_type", evt.Event,
	)

	var capture *orders.Capture
	if evt.Event == "payment.captured" {
		capture = &orders.Capture{
			ProviderOrderID: evt.Payload.Payment.Entity.OrderID,
			PaymentID:       evt.Payload.Payment.Entity.ID,
		}
	}

	err = h.orders.RecordProviderEvent(r.Context(), storage.ProviderEvent{
		Provider:        "razorpay",
		ProviderEventID: eventID,
		EventType:       evt.Event,
		Payload:         body,
	}, capture)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case errors.Is(err, storage.ErrDuplicateProviderEvent):
		h.logger.Info("payment provider event duplicate ignored", "provider", "razorpay", "provider_event_id", eventID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
	case errors.Is(err, orders.ErrNoStore):
		http.Error(w, "order storage not configured", http.StatusServiceUnavailable)
	default:
		h.logger.Error("record provider event failed", "provider_event_id", eventID, "err", err)
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
	}
}
