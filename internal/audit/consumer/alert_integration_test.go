//go:build integration

package consumer_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit/alert"
	auditconsumer "audittrail/internal/audit/consumer"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/notify"
	"audittrail/internal/platform/kafka/consumer"
	"audittrail/internal/platform/kafka/producer"
	"audittrail/pkg/testutil/containers"
)

func TestAlertsFlowFromSinkToWebhook(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	brokers := containers.GetManager().GetRedpanda(t).Brokers
	suffix := uuid.NewString()[:8]
	entriesTopic, alertsTopic := "audit.entries."+suffix, "audit.alerts."+suffix

	prod, err := producer.New(brokers)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.EnsureTopics(ctx, 1, 1, entriesTopic, alertsTopic))

	received := make(chan alert.Event, 4)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev alert.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			received <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := alert.NewDispatcher([]alert.Webhook{{Name: "test", URL: webhook.URL, Format: alert.FormatGeneric}}, nil, logger)
	router := auditconsumer.NewRouter(logger, nil)
	router.Register(alertsTopic, auditconsumer.NewAlertHandler(dispatcher, logger))

	cons, err := consumer.New(brokers, "alerter-"+suffix, router.Topics(), router, logger)
	require.NoError(t, err)
	defer cons.Close()
	go func() { _ = cons.Run(ctx) }()

	critical := models.Notification{
		EntryID:       uuid.New(),
		Sequence:      1,
		EventType:     models.EventSecurityViolation,
		EntityType:    "User",
		EntityID:      "u-1",
		Timestamp:     time.Now().UTC(),
		Critical:      true,
		RequiresAlert: true,
	}
	routine := models.Notification{
		EntryID:    uuid.New(),
		Sequence:   2,
		EventType:  models.EventCustomerUpdated,
		EntityType: "Customer",
		EntityID:   "c-1",
		Timestamp:  time.Now().UTC(),
	}
	sink := notify.NewKafkaSink(prod, entriesTopic, alertsTopic)
	require.NoError(t, sink.Deliver(ctx, []models.Notification{critical, routine}))

	select {
	case ev := <-received:
		assert.Equal(t, critical.EntryID, ev.EntryID)
		assert.Equal(t, "critical", ev.Severity)
	case <-ctx.Done():
		t.Fatal("alert was not delivered to the webhook")
	}

	select {
	case ev := <-received:
		t.Fatalf("unexpected second alert for %s", ev.EntryID)
	case <-time.After(2 * time.Second):
	}
}
