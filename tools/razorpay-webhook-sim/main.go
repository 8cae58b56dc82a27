package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

func main() {
	var (
		baseURL   = flag.String("base-url", getenv("BASE_URL", "http://localhost:8080"), "storefront base url")
		evtType   = flag.String("type", getenv("RAZORPAY_EVENT_TYPE", "payment.captured"), "razorpay event type")
		orderID   = flag.String("order-id", getenv("ORDER_ID", ""), "razorpay order id (order_...)")
		paymentID = flag.String("payment-id", getenv("PAYMENT_ID", ""), "razorpay payment id; generated when empty")
		amount    = flag.Int64("amount", 0, "amount in paise")
		eventID   = flag.String("event-id", getenv("EVENT_ID", ""), "X-Razorpay-Event-Id; generated when empty")
		secret    = flag.String("secret", getenv("RAZORPAY_WEBHOOK_SECRET", ""), "razorpay webhook secret")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("RAZORPAY_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*orderID) == "" {
		fatal("ORDER_ID is required")
	}
	if *paymentID == "" {
		*paymentID = "pay_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	}
	if *eventID == "" {
		*eventID = "evt_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	}

	payload, err := buildEventJSON(*evtType, time.Now().UTC(), *orderID, *paymentID, *amount)
	if err != nil {
		fatal(err.Error())
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/webhooks/razorpay", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", sign(payload, *secret))
	req.Header.Set("X-Razorpay-Event-Id", *eventID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	fmt.Printf("event_id=%s status=%d body=%s\n", *eventID, resp.StatusCode, strings.TrimSpace(string(body)))
}

// sign matches the X-Razorpay-Signature scheme: hex HMAC-SHA256 of the raw body.
func sign(body []byte, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func buildEventJSON(eventType string, t time.Time, orderID, paymentID string, amount int64) ([]byte, error) {
	var status string
	switch eventType {
	case "payment.captured":
		status = "captured"
	case "payment.authorized":
		status = "authorized"
	case "payment.failed":
		status = "failed"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"entity":     "event",
		"event":      eventType,
		"contains":   []string{"payment"},
		"created_at": t.Unix(),
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":         paymentID,
					"entity":     "payment",
					"order_id":   orderID,
					"amount":     amount,
					"currency":   "INR",
					"status":     status,
					"created_at": t.Unix(),
				},
			},
		},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
