package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// InvalidEntryError rejects an entry before any I/O because required fields are
// missing or hold values outside their closed set.
type InvalidEntryError struct {
	Missing []string
	Invalid []string
}

func (e *InvalidEntryError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "invalid audit entry: " + strings.Join(parts, "; ")
}

// PolicyError reports an event type with no classification mapping.
// It indicates a programming error in the caller.
type PolicyError struct {
	EventType EventType
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("no audit policy for event type %q", string(e.EventType))
}

// ChainAppendError means the append did not happen: no entry was stored and the tail
// did not advance. Err is the failure of the final attempt.
type ChainAppendError struct {
	Attempts int
	Err      error
}

func (e *ChainAppendError) Error() string {
	return fmt.Sprintf("chain append failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ChainAppendError) Unwrap() error { return e.Err }

// AuditWriteError wraps any failure on the write path of the command service.
type AuditWriteError struct {
	EventType EventType
	Err       error
}

func (e *AuditWriteError) Error() string {
	return fmt.Sprintf("audit write %s: %v", e.EventType, e.Err)
}

func (e *AuditWriteError) Unwrap() error { return e.Err }

// ViolationKind distinguishes the ways a chain position can be broken.
type ViolationKind string

const (
	// ViolationLinkage: stored previousHash differs from the predecessor's dataHash.
	ViolationLinkage ViolationKind = "LINKAGE_MISMATCH"
	// ViolationContent: recomputed dataHash differs from the stored one.
	ViolationContent ViolationKind = "CONTENT_MISMATCH"
	// ViolationGap: a sequence number is missing with no tombstone covering it.
	ViolationGap ViolationKind = "SEQUENCE_GAP"
)

// IntegrityViolation is one broken position found by chain verification.
// It is reported as data, never repaired.
type IntegrityViolation struct {
	EntryID  uuid.UUID     `json:"entry_id"`
	Sequence int64         `json:"sequence"`
	Kind     ViolationKind `json:"kind"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
}

func (v IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation at sequence %d (%s): %s expected %s, got %s",
		v.Sequence, v.EntryID, v.Kind, v.Expected, v.Actual)
}
