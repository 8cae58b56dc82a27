package leads

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/outbox"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/storage"
)

// Store is satisfied by *storage.Repository.
type Store interface {
	InTx(ctx context.Context, fn func(pgx.Tx) error) error
	InsertLead(ctx context.Context, tx pgx.Tx, l storage.Lead) error
}

type Outbox interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type DemoRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Product string `json:"product"`
}

// ValidationError lists the required fields that were blank.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Service accepts contact messages and demo requests. Without a store the
// lead is only logged.
type Service struct {
	store  Store
	outbox Outbox
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, ob Outbox, logger *slog.Logger) *Service {
	return &Service{store: store, outbox: ob, logger: logger, now: time.Now}
}

func (s *Service) Contact(ctx context.Context, req ContactRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if err := requireFields(
		field{"name", req.Name},
		field{"email", req.Email},
		field{"subject", req.Subject},
		field{"message", req.Message},
	); err != nil {
		return "", err
	}
	lead := storage.Lead{
		ID:      uuid.NewString(),
		Kind:    storage.LeadContact,
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}
	return lead.ID, s.save(ctx, lead, outbox.TopicContactReceived)
}

func (s *Service) Demo(ctx context.Context, req DemoRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	if err := requireFields(
		field{"name", req.Name},
		field{"email", req.Email},
		field{"company", req.Company},
	); err != nil {
		return "", err
	}
	lead := storage.Lead{
		ID:      uuid.NewString(),
		Kind:    storage.LeadDemo,
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Phone:   strings.TrimSpace(req.Phone),
		Message: strings.TrimSpace(req.Message),
		Product: strings.TrimSpace(req.Product),
	}
	return lead.ID, s.save(ctx, lead, outbox.TopicDemoRequested)
}

type leadPayload struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Message    string `json:"message,omitempty"`
	Product    string `json:"product,omitempty"`
	ReceivedAt string `json:"received_at"`
}

func (s *Service) save(ctx context.Context, l storage.Lead, topic string) error {
	s.logger.Info("lead received", "lead_id", l.ID, "kind", l.Kind, "product", l.Product)
	if s.store == nil {
		return nil
	}
	evt, err := outbox.NewEvent("lead", l.ID, topic, leadPayload{
		ID:         l.ID,
		Kind:       l.Kind,
		Name:       l.Name,
		Email:      l.Email,
		Company:    l.Company,
		Phone:      l.Phone,
		Subject:    l.Subject,
		Message:    l.Message,
		Product:    l.Product,
		ReceivedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx pgx.Tx) error {
		if err := s.store.InsertLead(ctx, tx, l); err != nil {
			return err
		}
		if s.outbox == nil {
			return nil
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
