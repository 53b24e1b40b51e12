package models

import (
	"time"

	"github.com/google/uuid"
)

// Tombstone preserves the chain position of a purged entry. It holds no personal data.
type Tombstone struct {
	ID           uuid.UUID
	Sequence     int64
	Timestamp    time.Time
	EventType    EventType
	PreviousHash string
	DataHash     string
	PurgedAt     time.Time
}

// Link returns the chain-relevant view of the tombstone.
func (t Tombstone) Link() ChainLink {
	return ChainLink{
		ID:           t.ID,
		Sequence:     t.Sequence,
		PreviousHash: t.PreviousHash,
		DataHash:     t.DataHash,
	}
}

// ChainLink is one position of the chain as seen by verification: either a live
// entry (Entry set) or a tombstone (Entry nil), whose content can no longer be rehashed.
type ChainLink struct {
	ID           uuid.UUID
	Sequence     int64
	PreviousHash string
	DataHash     string
	Entry        *Entry
}

// Purged reports whether the link is a tombstone.
func (l ChainLink) Purged() bool { return l.Entry == nil }

// Tail is the last committed chain position. The zero value is the empty chain.
type Tail struct {
	Sequence int64
	Hash     string
}

// IsEmpty reports whether nothing has been appended yet.
func (t Tail) IsEmpty() bool { return t.Sequence == 0 }
