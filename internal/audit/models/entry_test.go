package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validContext() LogContext {
	return LogContext{
		EventType:  EventCustomerUpdated,
		EntityType: "Customer",
		EntityID:   "c-42",
		Actor:      Actor{UserID: "u-1", UserName: "alice", UserRole: "SALES"},
		OldValue:   []byte(`{"name":"old"}`),
		NewValue:   []byte(`{"name":"new"}`),
		Request: RequestMetadata{
			IPAddress: "10.0.0.1",
			UserAgent: "Mozilla/5.0",
			SessionID: "sess-1",
			RequestID: "req-1",
		},
	}
}

func TestNewEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))

	t.Run("classifies and normalizes", func(t *testing.T) {
		e, err := NewEntry(validContext(), now)
		require.NoError(t, err)

		assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
		assert.Equal(t, time.UTC, e.Timestamp.Location())
		assert.Equal(t, 123456000, e.Timestamp.Nanosecond())
		assert.True(t, e.IsComplianceRelevant)
		assert.False(t, e.IsCritical)
		assert.Equal(t, SourceAPI, e.Source)
		assert.Equal(t, SchemaVersion, e.SchemaVersion)
		assert.Empty(t, e.PreviousHash)
		assert.Empty(t, e.DataHash)
	})

	t.Run("missing required fields are all reported", func(t *testing.T) {
		lc := validContext()
		lc.EntityID = ""
		lc.Actor.UserRole = ""

		_, err := NewEntry(lc, now)
		var invalid *InvalidEntryError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, []string{"entityId", "userRole"}, invalid.Missing)
	})

	t.Run("unknown source is rejected", func(t *testing.T) {
		lc := validContext()
		lc.Source = "FAX"
		lc.EntityID = ""

		_, err := NewEntry(lc, now)
		var invalid *InvalidEntryError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, []string{"entityId"}, invalid.Missing)
		assert.Equal(t, []string{"source"}, invalid.Invalid)
		assert.EqualError(t, err, "invalid audit entry: missing entityId; invalid source")
	})

	t.Run("known source is kept", func(t *testing.T) {
		lc := validContext()
		lc.Source = SourceBatch

		e, err := NewEntry(lc, now)
		require.NoError(t, err)
		assert.Equal(t, SourceBatch, e.Source)
	})

	t.Run("required fields are checked before classification", func(t *testing.T) {
		lc := validContext()
		lc.EventType = "UNKNOWN"
		lc.Actor.UserName = ""

		_, err := NewEntry(lc, now)
		var invalid *InvalidEntryError
		assert.True(t, errors.As(err, &invalid))
	})

	t.Run("unknown event type", func(t *testing.T) {
		lc := validContext()
		lc.EventType = "UNKNOWN"

		_, err := NewEntry(lc, now)
		var policyErr *PolicyError
		assert.True(t, errors.As(err, &policyErr))
	})

	t.Run("payloads are copied", func(t *testing.T) {
		lc := validContext()
		e, err := NewEntry(lc, now)
		require.NoError(t, err)

		lc.NewValue[0] = 'X'
		assert.Equal(t, byte('{'), e.NewValue[0])
	})
}

func TestRedactedLeavesOriginalUntouched(t *testing.T) {
	e, err := NewEntry(validContext(), time.Now())
	require.NoError(t, err)

	r := e.Redacted()

	assert.Empty(t, r.IPAddress)
	assert.Empty(t, r.UserAgent)
	assert.Empty(t, r.SessionID)
	assert.Nil(t, r.OldValue)
	assert.Nil(t, r.NewValue)
	assert.Equal(t, "req-1", r.RequestID)

	assert.Equal(t, "10.0.0.1", e.IPAddress)
	assert.NotNil(t, e.OldValue)
	assert.NotNil(t, e.NewValue)
}

func TestRequiresNotification(t *testing.T) {
	now := time.Now()
	build := func(et EventType) *Entry {
		lc := validContext()
		lc.EventType = et
		e, err := NewEntry(lc, now)
		require.NoError(t, err)
		return e
	}

	assert.True(t, build(EventDataDeletion).RequiresNotification())
	assert.True(t, build(EventPermissionDenied).RequiresNotification())
	assert.False(t, build(EventLoginSuccess).RequiresNotification())
}

func TestFilterPaged(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, Filter{}.Paged().Limit)
	assert.Equal(t, MaxPageLimit, Filter{Limit: 10_000}.Paged().Limit)
	assert.Equal(t, 0, Filter{Offset: -3}.Paged().Offset)
	assert.Equal(t, 20, Filter{Limit: 20}.Paged().Limit)
}
