package models

import "time"

// IntegrityReport is the structured result of verifying a range of the chain.
type IntegrityReport struct {
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Valid      bool                 `json:"valid"`
	Checked    int                  `json:"checked"`
	Purged     int                  `json:"purged"`
	Violations []IntegrityViolation `json:"violations,omitempty"`
	// Error is set when verification could not run; Valid is false then.
	Error      string    `json:"error,omitempty"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Statistics summarizes entries in a period.
type Statistics struct {
	From            time.Time           `json:"from"`
	To              time.Time           `json:"to"`
	TotalEntries    int64               `json:"total_entries"`
	UniqueUsers     int64               `json:"unique_users"`
	UniqueEntities  int64               `json:"unique_entities"`
	FailureCount    int64               `json:"failure_count"`
	CriticalCount   int64               `json:"critical_count"`
	SecurityCount   int64               `json:"security_count"`
	ComplianceCount int64               `json:"compliance_count"`
	ByEventType     map[EventType]int64 `json:"by_event_type"`
	BySource        map[Source]int64    `json:"by_source"`
	ByClientFamily  map[string]int64    `json:"by_client_family"`
}

// DashboardMetrics is the point-in-time overview shown to auditors.
type DashboardMetrics struct {
	GeneratedAt                time.Time `json:"generated_at"`
	TodayTotal                 int64     `json:"today_total"`
	ActiveUsersToday           int64     `json:"active_users_today"`
	CriticalToday              int64     `json:"critical_today"`
	Coverage                   float64   `json:"coverage"`
	IntegrityValid             bool      `json:"integrity_valid"`
	IntegrityViolations        int       `json:"integrity_violations"`
	RetentionCompliancePercent float64   `json:"retention_compliance_percent"`
}

// ComplianceReport aggregates compliance-relevant activity in a period.
type ComplianceReport struct {
	From               time.Time            `json:"from"`
	To                 time.Time            `json:"to"`
	GeneratedAt        time.Time            `json:"generated_at"`
	ComplianceEntries  int64                `json:"compliance_entries"`
	ByLegalBasis       map[LegalBasis]int64 `json:"by_legal_basis"`
	DataSubjectRequest int64                `json:"data_subject_requests"`
	ConsentOperations  int64                `json:"consent_operations"`
	DeletionRequests   int64                `json:"deletion_requests"`
	Integrity          IntegrityReport      `json:"integrity"`
}
