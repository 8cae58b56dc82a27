package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pioneers-hq/storefront/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return r.pool.InTx(ctx, fn)
}

const (
	OrderCreated  = "created"
	OrderPaid     = "paid"
	OrderCanceled = "canceled"
	OrderCaptured = "captured"
)

type Order struct {
	Receipt           string
	ViewID            string
	Provider          string
	AttemptID         string
	ProviderOrderID   string
	ProviderPaymentID string
	Product           string
	Tier              string
	Channel           string
	Amount            int64
	Currency          string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	CustomerCompany   string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, o Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (receipt, view_id, provider, attempt_id, provider_order_id, product, tier, channel,
		                    amount, currency, customer_name, customer_email, customer_phone, customer_company, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (receipt) DO NOTHING
	`, o.Receipt, o.ViewID, o.Provider, nullIfEmpty(o.AttemptID), nullIfEmpty(o.ProviderOrderID), o.Product, o.Tier, o.Channel,
		o.Amount, o.Currency, o.CustomerName, o.CustomerEmail, o.CustomerPhone, nullIfEmpty(o.CustomerCompany), defaultIfEmpty(o.Status, OrderCreated))
	return err
}

// MarkOrderPaid moves a created order to paid. It reports false when the
// order is unknown or already past created.
func (r *Repository) MarkOrderPaid(ctx context.Context, tx pgx.Tx, receipt, paymentID string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'paid',
		    provider_payment_id = COALESCE($2, provider_payment_id),
		    paid_at = $3,
		    updated_at = now()
		WHERE receipt = $1 AND status = 'created'
	`, receipt, nullIfEmpty(paymentID), at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MarkOrderCanceled(ctx context.Context, tx pgx.Tx, receipt string, at time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'canceled',
		    canceled_at = $2,
		    updated_at = now()
		WHERE receipt = $1 AND status = 'created'
	`, receipt, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOrderCaptured records the provider's capture confirmation. Captured is
// terminal and wins over any browser-reported state.
func (r *Repository) MarkOrderCaptured(ctx context.Context, tx pgx.Tx, providerOrderID, paymentID string, at time.Time) (Order, bool, error) {
	var o Order
	err := tx.QueryRow(ctx, `
		UPDATE orders
		SET status = 'captured',
		    provider_payment_id = COALESCE($2, provider_payment_id),
		    captured_at = $3,
		    updated_at = now()
		WHERE provider_order_id = $1 AND status <> 'captured'
		RETURNING receipt, product, tier, amount, currency, customer_email
	`, providerOrderID, nullIfEmpty(paymentID), at).Scan(&o.Receipt, &o.Product, &o.Tier, &o.Amount, &o.Currency, &o.CustomerEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, err
	}
	o.Status = OrderCaptured
	o.ProviderOrderID = providerOrderID
	o.ProviderPaymentID = paymentID
	return o, true, nil
}

func (r *Repository) GetOrder(ctx context.Context, receipt string) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `
		SELECT receipt, view_id, provider, COALESCE(attempt_id, ''), COALESCE(provider_order_id, ''),
		       COALESCE(provider_payment_id, ''), product, tier, channel, amount, currency,
		       customer_name, customer_email, customer_phone, COALESCE(customer_company, ''),
		       status, created_at, updated_at
		FROM orders
		WHERE receipt = $1
	`, receipt).Scan(&o.Receipt, &o.ViewID, &o.Provider, &o.AttemptID, &o.ProviderOrderID,
		&o.ProviderPaymentID, &o.Product, &o.Tier, &o.Channel, &o.Amount, &o.Currency,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.CustomerCompany,
		&o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

const (
	LeadContact = "contact"
	LeadDemo    = "demo"
)

type Lead struct {
	ID      string
	Kind    string
	Name    string
	Email   string
	Company string
	Phone   string
	Subject string
	Message string
	Product string
}

func (r *Repository) InsertLead(ctx context.Context, tx pgx.Tx, l Lead) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO leads (id, kind, name, email, company, phone, subject, message, product)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.Kind, l.Name, l.Email, nullIfEmpty(l.Company), nullIfEmpty(l.Phone),
		nullIfEmpty(l.Subject), nullIfEmpty(l.Message), nullIfEmpty(l.Product))
	return err
}

type AuditEvent struct {
	EventType string
	ActorType string
	ActorID   string
	Metadata  map[string]any
}

func (r *Repository) InsertAuditEvent(ctx context.Context, tx pgx.Tx, evt AuditEvent) error {
	metadata := evt.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, metadata)
		VALUES ($1, $2, $3, $4)
	`, evt.EventType, evt.ActorType, nullIfEmpty(evt.ActorID), metadata)
	return err
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func defaultIfEmpty(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
