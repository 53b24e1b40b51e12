package memory

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/sentinel"
)

// InMemoryStore keeps the chain in process memory. The tail lock is a mutex, so it is
// only correct within one process; use it for tests and single-instance tools.
type InMemoryStore struct {
	mu         sync.RWMutex
	entries    []*models.Entry // ascending sequence
	byID       map[uuid.UUID]*models.Entry
	tombstones []models.Tombstone // ascending sequence
	tail       models.Tail

	purgeMu sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[uuid.UUID]*models.Entry)}
}

// Clear drops every entry, tombstone and the tail.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.tombstones = nil
	s.byID = make(map[uuid.UUID]*models.Entry)
	s.tail = models.Tail{}
}

// AppendLinked links and stores one entry while holding the tail lock.
func (s *InMemoryStore) AppendLinked(ctx context.Context, link chain.LinkFunc) (*models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := link(s.tail)
	if e.Sequence != s.tail.Sequence+1 {
		return nil, sentinel.ErrConflict
	}
	if _, exists := s.byID[e.ID]; exists {
		return nil, sentinel.ErrConflict
	}

	stored := e.Clone()
	s.entries = append(s.entries, stored)
	s.byID[stored.ID] = stored
	s.tail = models.Tail{Sequence: stored.Sequence, Hash: stored.DataHash}
	return stored.Clone(), nil
}

// Tail returns the last committed chain position.
func (s *InMemoryStore) Tail(_ context.Context) (models.Tail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail, nil
}

// Get returns one entry by ID.
func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

// Find returns matching entries, newest first.
func (s *InMemoryStore) Find(_ context.Context, f models.Filter) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Entry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !matches(e, f) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, e.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, f models.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if matches(e, f) {
			n++
		}
	}
	return n, nil
}

// CountDistinct counts distinct non-empty values of field among matching entries.
func (s *InMemoryStore) CountDistinct(ctx context.Context, f models.Filter, field models.Field) (int64, error) {
	groups, err := s.GroupCount(ctx, f, field)
	if err != nil {
		return 0, err
	}
	return int64(len(groups)), nil
}

// GroupCount counts matching entries per non-empty value of field.
func (s *InMemoryStore) GroupCount(_ context.Context, f models.Filter, field models.Field) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	for _, e := range s.entries {
		if !matches(e, f) {
			continue
		}
		if v := fieldValue(e, field); v != "" {
			out[v]++
		}
	}
	return out, nil
}

// ChainLinks returns every position from the first sequence stamped at or after
// from up to the last sequence stamped before to, by sequence. Positions inside
// that window are returned whatever their own timestamp.
func (s *InMemoryStore) ChainLinks(_ context.Context, from, to time.Time) ([]models.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := int64(math.MaxInt64), int64(0)
	widen := func(seq int64, ts time.Time) {
		if inRange(ts, from, to) {
			lo, hi = min(lo, seq), max(hi, seq)
		}
	}
	for _, e := range s.entries {
		widen(e.Sequence, e.Timestamp)
	}
	for _, t := range s.tombstones {
		widen(t.Sequence, t.Timestamp)
	}
	if hi == 0 {
		return nil, nil
	}

	var links []models.ChainLink
	for _, e := range s.entries {
		if e.Sequence >= lo && e.Sequence <= hi {
			links = append(links, e.Clone().Link())
		}
	}
	for _, t := range s.tombstones {
		if t.Sequence >= lo && t.Sequence <= hi {
			links = append(links, t.Link())
		}
	}
	slices.SortFunc(links, func(a, b models.ChainLink) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return links, nil
}

// LinkAt returns the entry or tombstone at sequence.
func (s *InMemoryStore) LinkAt(_ context.Context, sequence int64) (models.ChainLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := slices.BinarySearchFunc(s.entries, sequence, func(e *models.Entry, seq int64) int {
		return cmp.Compare(e.Sequence, seq)
	}); ok {
		return s.entries[i].Clone().Link(), nil
	}
	if i, ok := slices.BinarySearchFunc(s.tombstones, sequence, func(t models.Tombstone, seq int64) int {
		return cmp.Compare(t.Sequence, seq)
	}); ok {
		return s.tombstones[i].Link(), nil
	}
	return models.ChainLink{}, sentinel.ErrNotFound
}

// WithPurgeLock runs fn holding the purge lock, exclusive for purges and shared for
// verification.
func (s *InMemoryStore) WithPurgeLock(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) error {
	if exclusive {
		s.purgeMu.Lock()
		defer s.purgeMu.Unlock()
	} else {
		s.purgeMu.RLock()
		defer s.purgeMu.RUnlock()
	}
	return fn(ctx)
}

// CountOlderThan counts entries whose retention ended before cutoff.
func (s *InMemoryStore) CountOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if e.RetentionUntil.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// DeleteOlderThan removes entries whose retention ended before cutoff and keeps a
// tombstone for each removed chain position.
func (s *InMemoryStore) DeleteOlderThan(_ context.Context, cutoff, purgedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if !e.RetentionUntil.Before(cutoff) {
			kept = append(kept, e)
			continue
		}
		s.tombstones = append(s.tombstones, models.Tombstone{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Timestamp:    e.Timestamp,
			EventType:    e.EventType,
			PreviousHash: e.PreviousHash,
			DataHash:     e.DataHash,
			PurgedAt:     models.NormalizeTime(purgedAt),
		})
		delete(s.byID, e.ID)
		removed++
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	slices.SortFunc(s.tombstones, func(a, b models.Tombstone) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return removed, nil
}

func matches(e *models.Entry, f models.Filter) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, e.EventType) {
		return false
	}
	if !inRange(e.Timestamp, f.From, f.To) {
		return false
	}
	if f.Critical != nil && e.IsCritical != *f.Critical {
		return false
	}
	if f.Security != nil && e.IsSecurityRelevant != *f.Security {
		return false
	}
	if f.Compliance != nil && e.IsComplianceRelevant != *f.Compliance {
		return false
	}
	if f.Notifiable && !e.RequiresNotification() {
		return false
	}
	if f.RetentionBelow > 0 && e.RetentionUntil.Sub(e.Timestamp) >= f.RetentionBelow {
		return false
	}
	return true
}

func fieldValue(e *models.Entry, field models.Field) string {
	switch field {
	case models.FieldUserID:
		return e.UserID
	case models.FieldEntity:
		return e.EntityType + ":" + e.EntityID
	case models.FieldEventType:
		return string(e.EventType)
	case models.FieldLegalBasis:
		return string(e.LegalBasis)
	case models.FieldSource:
		return string(e.Source)
	case models.FieldUserAgent:
		return e.UserAgent
	default:
		return ""
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
