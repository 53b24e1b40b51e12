package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/internal/audit/store/memory"
	"audittrail/pkg/platform/sentinel"
)

// tamperingReader serves the links of a real store but rewrites some on the way out,
// the way a modified row in the backing store would look.
type tamperingReader struct {
	inner  chain.LinkReader
	tamper map[int64]func(*models.ChainLink)
	drop   map[int64]bool
}

func (r *tamperingReader) ChainLinks(ctx context.Context, from, to time.Time) ([]models.ChainLink, error) {
	links, err := r.inner.ChainLinks(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := links[:0]
	for _, l := range links {
		if r.drop[l.Sequence] {
			continue
		}
		if fn, ok := r.tamper[l.Sequence]; ok {
			fn(&l)
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *tamperingReader) LinkAt(ctx context.Context, seq int64) (models.ChainLink, error) {
	if r.drop[seq] {
		return models.ChainLink{}, sentinel.ErrNotFound
	}
	return r.inner.LinkAt(ctx, seq)
}

func seedChain(t *testing.T, n int) *memory.InMemoryStore {
	t.Helper()
	store := memory.NewInMemoryStore()
	engine := chain.NewEngine(store)
	for i := 0; i < n; i++ {
		_, err := engine.AppendWithLinkage(context.Background(), newEntry(t, models.EventCustomerUpdated))
		require.NoError(t, err)
	}
	return store
}

func TestVerifyEmptyChainIsValid(t *testing.T) {
	report, err := chain.NewVerifier(memory.NewInMemoryStore(), nil).Verify(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Zero(t, report.Checked)
}

func TestVerifyReportsCorruptedPreviousHashOnce(t *testing.T) {
	store := seedChain(t, 5)
	reader := &tamperingReader{inner: store, tamper: map[int64]func(*models.ChainLink){
		3: func(l *models.ChainLink) {
			l.PreviousHash = "deadbeef"
			l.Entry.PreviousHash = "deadbeef"
		},
	}}

	report, err := chain.NewVerifier(reader, nil).Verify(context.Background(), time.Time{}, time.Time{})

	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, int64(3), v.Sequence)
	assert.Equal(t, models.ViolationLinkage, v.Kind)
	assert.Equal(t, "deadbeef", v.Actual)

	third, err := store.LinkAt(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, third.ID, v.EntryID)
}

func TestVerifyReportsModifiedContent(t *testing.T) {
	store := seedChain(t, 4)
	reader := &tamperingReader{inner: store, tamper: map[int64]func(*models.ChainLink){
		2: func(l *models.ChainLink) { l.Entry.NewValue = []byte(`{"forged":true}`) },
	}}

	report, err := chain.NewVerifier(reader, nil).Verify(context.Background(), time.Time{}, time.Time{})

	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, models.ViolationContent, report.Violations[0].Kind)
	assert.Equal(t, int64(2), report.Violations[0].Sequence)
}

func TestVerifyReportsRemovedEntryAsGap(t *testing.T) {
	store := seedChain(t, 4)
	reader := &tamperingReader{inner: store, drop: map[int64]bool{2: true}}

	report, err := chain.NewVerifier(reader, nil).Verify(context.Background(), time.Time{}, time.Time{})

	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, models.ViolationGap, report.Violations[0].Kind)
	assert.Equal(t, int64(3), report.Violations[0].Sequence)
}

func TestVerifyWalksAcrossTombstones(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	engine := chain.NewEngine(store)

	short := newEntry(t, models.EventLoginSuccess)
	short.RetentionUntil = time.Now().Add(-time.Hour)
	_, err := engine.AppendWithLinkage(ctx, short)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		e := newEntry(t, models.EventCustomerUpdated)
		e.RetentionUntil = time.Now().AddDate(6, 0, 0)
		_, err := engine.AppendWithLinkage(ctx, e)
		require.NoError(t, err)
	}

	removed, err := store.DeleteOlderThan(ctx, time.Now(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	report, err := chain.NewVerifier(store, store).Verify(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Purged)
}

func TestVerifyRangeUsesPredecessorOutsideRange(t *testing.T) {
	ctx := context.Background()
	store := seedChain(t, 3)
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	engine := chain.NewEngine(store)
	_, err := engine.AppendWithLinkage(ctx, newEntry(t, models.EventCustomerUpdated))
	require.NoError(t, err)

	report, err := chain.NewVerifier(store, store).Verify(ctx, cutoff, time.Time{})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.Checked)
}

// seedOutOfOrder appends entries stamped at base plus the given offsets, in that
// order, the way concurrent writers commit when one of them stamped its entry
// earlier but took the tail lock later.
func seedOutOfOrder(t *testing.T, base time.Time, offsets ...time.Duration) *memory.InMemoryStore {
	t.Helper()
	store := memory.NewInMemoryStore()
	engine := chain.NewEngine(store)
	for _, off := range offsets {
		e := newEntry(t, models.EventCustomerCreated)
		e.Timestamp = base.Add(off)
		_, err := engine.AppendWithLinkage(context.Background(), e)
		require.NoError(t, err)
	}
	return store
}

func TestVerifyRangeToleratesOutOfOrderTimestamps(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seedOutOfOrder(t, base, 0, 2*time.Millisecond, time.Millisecond, 3*time.Millisecond)
	verifier := chain.NewVerifier(store, store)
	cut := base.Add(1500 * time.Microsecond)

	tests := []struct {
		name     string
		from, to time.Time
		checked  int
	}{
		{name: "whole chain", checked: 4},
		{name: "from inside the reordering", from: cut, checked: 3},
		{name: "to inside the reordering", to: cut, checked: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := verifier.Verify(ctx, tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, report.Valid, "violations: %v", report.Violations)
			assert.Equal(t, tt.checked, report.Checked)
		})
	}
}

func TestVerifyRangeStillChecksPositionsStampedOutsideIt(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := seedOutOfOrder(t, base, 0, 2*time.Millisecond, time.Millisecond, 3*time.Millisecond)
	reader := &tamperingReader{inner: store, tamper: map[int64]func(*models.ChainLink){
		3: func(l *models.ChainLink) { l.Entry.EntityID = "c-forged" },
	}}

	report, err := chain.NewVerifier(reader, nil).Verify(context.Background(), base.Add(1500*time.Microsecond), time.Time{})

	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, int64(3), report.Violations[0].Sequence)
	assert.Equal(t, models.ViolationContent, report.Violations[0].Kind)
}

type failingReader struct{ err error }

func (r failingReader) ChainLinks(context.Context, time.Time, time.Time) ([]models.ChainLink, error) {
	return nil, r.err
}

func (r failingReader) LinkAt(context.Context, int64) (models.ChainLink, error) {
	return models.ChainLink{}, r.err
}

func TestVerifyReturnsReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := chain.NewVerifier(failingReader{err: boom}, nil).Verify(context.Background(), time.Time{}, time.Time{})
	assert.ErrorIs(t, err, boom)
}
