package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/catalog"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/payment"
)

var (
	ErrUnknownTier       = errors.New("unknown tier")
	ErrUnknownField      = errors.New("unknown contact field")
	ErrAlreadyProcessing = errors.New("payment already in progress")
	ErrViewClosed        = errors.New("checkout view closed")
)

const (
	MsgMissingFields = "Please fill in all required fields"
	MsgScriptFailed  = "Failed to load payment gateway. Please try again."
	MsgPaymentOK     = "Payment successful! Your subscription is now active."
	MsgCancelled     = "Payment cancelled"
	MsgComingSoon    = "Stripe integration coming soon! Use Razorpay for now."
	MsgPaymentFailed = "Payment failed. Please try again."
)

// HomePath is where a paid checkout sends the browser.
const HomePath = "/"

type Channel string

const (
	ChannelCard       Channel = "card"
	ChannelUPI        Channel = "upi"
	ChannelNetBanking Channel = "netbanking"
)

// Primary reports whether the channel is served by the primary provider.
// Every other value goes to the secondary provider.
func (c Channel) Primary() bool {
	switch c {
	case ChannelCard, ChannelUPI, ChannelNetBanking:
		return true
	default:
		return false
	}
}

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Phone   string `json:"phone"`
}

type Selection struct {
	Product    catalog.Product
	Tier       catalog.Tier
	Channel    Channel
	Contact    Contact
	Processing bool
}

type NoticeLevel string

const (
	LevelInfo    NoticeLevel = "info"
	LevelSuccess NoticeLevel = "success"
	LevelError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// ValidationError lists the required contact fields that were blank.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Initiator is satisfied by *payment.Initiator.
type Initiator interface {
	Config(req payment.Request) payment.WidgetConfig
	Open(ctx context.Context, req payment.Request, cb payment.Callbacks) (payment.Widget, error)
}

// AttemptReporter forwards what the browser saw the widget do back to the
// provider, which verifies it and fires the attempt's callbacks.
type AttemptReporter interface {
	Complete(attemptID string, res payment.PaymentResult) error
	Dismiss(attemptID string) error
}

type Stopper interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// OrderEvent describes one payment attempt for the order lifecycle.
type OrderEvent struct {
	ViewID          string
	Receipt         string
	Provider        string
	AttemptID       string
	ProviderOrderID string
	ProductSlug     string
	Tier            catalog.Tier
	Channel         Channel
	Amount          int64
	Currency        string
	Contact         Contact
}

// Recorder persists the order lifecycle. Failures are logged, never shown to
// the buyer.
type Recorder interface {
	OrderOpened(ctx context.Context, evt OrderEvent) error
	OrderPaid(ctx context.Context, evt OrderEvent, res payment.PaymentResult) error
	OrderCanceled(ctx context.Context, evt OrderEvent) error
}
