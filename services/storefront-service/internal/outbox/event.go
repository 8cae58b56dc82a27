package outbox

import "encoding/json"

const (
	TopicOrderCreated     = "checkout.order.created.v1"
	TopicPaymentSucceeded = "checkout.payment.succeeded.v1"
	TopicPaymentCanceled  = "checkout.payment.canceled.v1"
	TopicPaymentCaptured  = "checkout.payment.captured.v1"
	TopicContactReceived  = "site.contact.received.v1"
	TopicDemoRequested    = "site.demo.requested.v1"
)

// Event is the envelope written to the outbox table. The Kafka topic is the
// event type and the key is the aggregate id.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}
