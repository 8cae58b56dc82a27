package leads

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pioneers-hq/storefront/services/storefront-service/internal/outbox"
	"github.com/pioneers-hq/storefront/services/storefront-service/internal/storage"
)

type fakeStore struct {
	leads  []storage.Lead
	events []outbox.Event
	err    error
}

func (f *fakeStore) InTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) InsertLead(_ context.Context, _ pgx.Tx, l storage.Lead) error {
	if f.err != nil {
		return f.err
	}
	f.leads = append(f.leads, l)
	return nil
}

func (f *fakeStore) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func newService(store *fakeStore) *Service {
	return New(store, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestContactRequiresAllFields(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	_, err := svc.Contact(context.Background(), ContactRequest{Name: "Asha", Email: " ", Subject: "Hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"email", "message"}, verr.Missing)
	assert.Empty(t, store.leads)

	id, err := svc.Contact(context.Background(), ContactRequest{Name: " Asha ", Email: "asha@example.com", Subject: "Pricing", Message: "Volume discounts?"})
	require.NoError(t, err)
	require.Len(t, store.leads, 1)
	assert.Equal(t, id, store.leads[0].ID)
	assert.Equal(t, "Asha", store.leads[0].Name)
	assert.Equal(t, storage.LeadContact, store.leads[0].Kind)
	require.Len(t, store.events, 1)
	assert.Equal(t, outbox.TopicContactReceived, store.events[0].EventType)
}

func TestDemoRequest(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)

	_, err := svc.Demo(context.Background(), DemoRequest{Name: "Asha", Email: "asha@example.com"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"company"}, verr.Missing)

	_, err = svc.Demo(context.Background(), DemoRequest{Name: "Asha", Email: "asha@example.com", Company: "Acme", Product: "DataForge"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	assert.Equal(t, outbox.TopicDemoRequested, store.events[0].EventType)

	var body map[string]any
	require.NoError(t, json.Unmarshal(store.events[0].Payload, &body))
	assert.Equal(t, "DataForge", body["product"])
	assert.Equal(t, "demo", body["kind"])
}

func TestStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	_, err := newService(store).Demo(context.Background(), DemoRequest{Name: "A", Email: "a@b.c", Company: "C"})
	assert.Error(t, err)
	assert.Empty(t, store.events)
}

func TestWithoutStore(t *testing.T) {
	svc := New(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	id, err := svc.Contact(context.Background(), ContactRequest{Name: "A", Email: "a@b.c", Subject: "S", Message: "M"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
