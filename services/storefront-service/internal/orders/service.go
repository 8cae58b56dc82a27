package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/checkout"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/outbox"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/storage"
)

// ErrNoStore is returned by operations that need the database when none is configured.
var ErrNoStore = errors.New("order storage not configured")

// Store is satisfied by *storage.Repository.
type Store interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	InsertOrder(ctx context.Context, tx pgx.Tx, o storage.Order) error
	MarkOrderPaid(ctx context.Context, tx pgx.Tx, receipt, paymentID string, at time.Time) (bool, error)
	MarkOrderCanceled(ctx context.Context, tx pgx.Tx, receipt string, at time.Time) (bool, error)
	MarkOrderCaptured(ctx context.Context, tx pgx.Tx, providerOrderID, paymentID string, at time.Time) (storage.Order, bool, error)
	InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt storage.ProviderEvent) error
	InsertAuditEvent(ctx context.Context, tx pgx.Tx, evt storage.AuditEvent) error
}

// Outbox is satisfied by *outbox.Repository.
type Outbox interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Service records the order lifecycle. Every state change and its event are
// written in one transaction. With no store it only logs.
type Service struct {
	store  Store
	outbox Outbox
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, ob Outbox, logger *slog.Logger) *Service {
	return &Service{store: store, outbox: ob, logger: logger, now: time.Now}
}

var _ checkout.Recorder = (*Service)(nil)

type orderPayload struct {
	Receipt         string `json:"receipt"`
	ViewID          string `json:"view_id,omitempty"`
	Provider        string `json:"provider"`
	ProviderOrderID string `json:"provider_order_id,omitempty"`
	PaymentID       string `json:"payment_id,omitempty"`
	Product         string `json:"product"`
	Tier            string `json:"tier"`
	Channel         string `json:"channel,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Email           string `json:"email,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

func payloadFor(evt checkout.OrderEvent, at time.Time) orderPayload {
	return orderPayload{
		Receipt:         evt.Receipt,
		ViewID:          evt.ViewID,
		Provider:        evt.Provider,
		ProviderOrderID: evt.ProviderOrderID,
		Product:         evt.ProductSlug,
		Tier:            string(evt.Tier),
		Channel:         string(evt.Channel),
		Amount:          evt.Amount,
		Currency:        evt.Currency,
		Email:           evt.Contact.Email,
		OccurredAt:      at.UTC().Format(time.RFC3339),
	}
}

func (s *Service) OrderOpened(ctx context.Context, evt checkout.OrderEvent) error {
	at := s.now()
	if s.store == nil {
		s.logger.Info("order created (not stored)", "receipt", evt.Receipt, "product", evt.ProductSlug, "tier", string(evt.Tier))
		return nil
	}
	return s.store.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertOrder(ctx, tx, storage.Order{
			Receipt:         evt.Receipt,
			ViewID:          evt.ViewID,
			Provider:        evt.Provider,
			AttemptID:       evt.AttemptID,
			ProviderOrderID: evt.ProviderOrderID,
			Product:         evt.ProductSlug,
			Tier:            string(evt.Tier),
			Channel:         string(evt.Channel),
			Amount:          evt.Amount,
			Currency:        evt.Currency,
			CustomerName:    evt.Contact.Name,
			CustomerEmail:   evt.Contact.Email,
			CustomerPhone:   evt.Contact.Phone,
			CustomerCompany: evt.Contact.Company,
			Status:          storage.OrderCreated,
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, evt.Receipt, outbox.TopicOrderCreated, payloadFor(evt, at))
	})
}

func (s *Service) OrderPaid(ctx context.Context, evt checkout.OrderEvent, res payment.PaymentResult) error {
	at := s.now()
	if s.store == nil {
		s.logger.Info("order paid (not stored)", "receipt", evt.Receipt, "payment_id", res.PaymentID)
		return nil
	}
	return s.store.InTx(ctx, func(tx pgx.Tx) error {
		changed, err := s.store.MarkOrderPaid(ctx, tx, evt.Receipt, res.PaymentID, at)
		if err != nil || !changed {
			return err
		}
		p := payloadFor(evt, at)
		p.PaymentID = res.PaymentID
		return s.emit(ctx, tx, evt.Receipt, outbox.TopicPaymentSucceeded, p)
	})
}

func (s *Service) OrderCanceled(ctx context.Context, evt checkout.OrderEvent) error {
	at := s.now()
	if s.store == nil {
		s.logger.Info("order canceled (not stored)", "receipt", evt.Receipt)
		return nil
	}
	return s.store.InTx(ctx, func(tx pgx.Tx) error {
		changed, err := s.store.MarkOrderCanceled(ctx, tx, evt.Receipt, at)
		if err != nil || !changed {
			return err
		}
		return s.emit(ctx, tx, evt.Receipt, outbox.TopicPaymentCanceled, payloadFor(evt, at))
	})
}

// Capture is the part of a provider webhook that confirms money moved.
type Capture struct {
	ProviderOrderID string
	PaymentID       string
}

// RecordProviderEvent stores a webhook delivery once and applies its capture,
// if any. A replayed delivery returns storage.ErrDuplicateProviderEvent.
func (s *Service) RecordProviderEvent(ctx context.Context, evt storage.ProviderEvent, capture *Capture) error {
	if s.store == nil {
		return ErrNoStore
	}
	at := s.now()
	return s.store.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertProviderEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.store.InsertAuditEvent(ctx, tx, storage.AuditEvent{
			EventType: "checkout.provider." + evt.Provider + ".webhook",
			ActorType: "provider",
			ActorID:   evt.Provider,
			Metadata: map[string]any{
				"provider_event_id": evt.ProviderEventID,
				"event_type":        evt.EventType,
			},
		}); err != nil {
			return err
		}
		if capture == nil || capture.ProviderOrderID == "" {
			return nil
		}
		o, changed, err := s.store.MarkOrderCaptured(ctx, tx, capture.ProviderOrderID, capture.PaymentID, at)
		if err != nil {
			return err
		}
		if !changed {
			s.logger.Warn("capture for unknown or captured order", "order_id", capture.ProviderOrderID)
			return nil
		}
		return s.emit(ctx, tx, o.Receipt, outbox.TopicPaymentCaptured, orderPayload{
			Receipt:         o.Receipt,
			Provider:        evt.Provider,
			ProviderOrderID: capture.ProviderOrderID,
			PaymentID:       capture.PaymentID,
			Product:         o.Product,
			Tier:            o.Tier,
			Amount:          o.Amount,
			Currency:        o.Currency,
			Email:           o.CustomerEmail,
			OccurredAt:      at.UTC().Format(time.RFC3339),
		})
	})
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, receipt, topic string, payload orderPayload) error {
	if s.outbox == nil {
		return nil
	}
	evt, err := outbox.NewEvent("order", receipt, topic, payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}
