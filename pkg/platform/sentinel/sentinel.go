package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: a concurrent writer won (serialization failure, deadlock, lock timeout)
// - ErrUnavailable: service or resource temporarily unavailable
// - ErrBusy: a bounded queue or pool has no free capacity
//
// For validation errors (bad input, missing fields), use the audit error taxonomy directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrBusy        = errors.New("busy")
)
