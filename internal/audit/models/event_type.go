package models

// EventType is the closed enumeration of audited domain events.
type EventType string

const (
	// Customer events
	EventCustomerCreated EventType = "CUSTOMER_CREATED"
	EventCustomerUpdated EventType = "CUSTOMER_UPDATED"
	EventCustomerDeleted EventType = "CUSTOMER_DELETED"

	// Lead events
	EventLeadCreated   EventType = "LEAD_CREATED"
	EventLeadUpdated   EventType = "LEAD_UPDATED"
	EventLeadConverted EventType = "LEAD_CONVERTED"
	EventLeadDeleted   EventType = "LEAD_DELETED"

	// Opportunity events
	EventOpportunityCreated      EventType = "OPPORTUNITY_CREATED"
	EventOpportunityUpdated      EventType = "OPPORTUNITY_UPDATED"
	EventOpportunityStageChanged EventType = "OPPORTUNITY_STAGE_CHANGED"
	EventOpportunityDeleted      EventType = "OPPORTUNITY_DELETED"

	// Authentication and access events
	EventLoginSuccess      EventType = "LOGIN_SUCCESS"
	EventLoginFailure      EventType = "LOGIN_FAILURE"
	EventLogout            EventType = "LOGOUT"
	EventPermissionDenied  EventType = "PERMISSION_DENIED"
	EventPasswordChanged   EventType = "PASSWORD_CHANGED"
	EventRoleChanged       EventType = "ROLE_CHANGED"
	EventSecurityViolation EventType = "SECURITY_VIOLATION"

	// Consent events
	EventConsentGiven     EventType = "CONSENT_GIVEN"
	EventConsentWithdrawn EventType = "CONSENT_WITHDRAWN"

	// Data subject events
	EventDataExport        EventType = "DATA_EXPORT"
	EventDataDeletion      EventType = "DATA_DELETION"
	EventDataAccessRequest EventType = "DATA_ACCESS_REQUEST"
	EventDataRectification EventType = "DATA_RECTIFICATION"
	EventDataPurge         EventType = "DATA_PURGE"

	// System events
	EventSystemStartup        EventType = "SYSTEM_STARTUP"
	EventSystemShutdown       EventType = "SYSTEM_SHUTDOWN"
	EventConfigurationChanged EventType = "CONFIGURATION_CHANGED"
	EventBulkOperation        EventType = "BULK_OPERATION"
	EventIntegrityCheckFailed EventType = "INTEGRITY_CHECK_FAILED"
)

// Classification is the fixed outcome of classifying an event type.
type Classification struct {
	Critical           bool
	SecurityRelevant   bool
	ComplianceRelevant bool
}

// RetentionTier selects the minimum retention period of an event type.
type RetentionTier int

const (
	// TierShort keeps operational and security telemetry for one year.
	TierShort RetentionTier = iota
	// TierCompliance keeps compliance-relevant business records for six years (HGB §257).
	TierCompliance
	// TierLong keeps deletion, consent and data-subject-request evidence for ten years.
	TierLong
)

type traits struct {
	class      Classification
	failure    bool
	notify     bool
	tier       RetentionTier
	legalBasis LegalBasis
}

var (
	plain      = Classification{}
	compliance = Classification{ComplianceRelevant: true}
	security   = Classification{SecurityRelevant: true}
)

// eventTraits maps each event type to its classification, alerting and retention traits.
// Every EventType constant must have an entry; the tests enforce it.
var eventTraits = map[EventType]traits{
	EventCustomerCreated: {class: compliance, tier: TierCompliance, legalBasis: LegalBasisContract},
	EventCustomerUpdated: {class: compliance, tier: TierCompliance, legalBasis: LegalBasisContract},
	EventCustomerDeleted: {class: Classification{Critical: true, ComplianceRelevant: true}, tier: TierLong, legalBasis: LegalBasisLegalObligation},

	EventLeadCreated:   {class: compliance, tier: TierCompliance, legalBasis: LegalBasisLegitimateInterests},
	EventLeadUpdated:   {class: compliance, tier: TierCompliance, legalBasis: LegalBasisLegitimateInterests},
	EventLeadConverted: {class: compliance, tier: TierCompliance, legalBasis: LegalBasisContract},
	EventLeadDeleted:   {class: Classification{Critical: true, ComplianceRelevant: true}, tier: TierLong, legalBasis: LegalBasisLegalObligation},

	EventOpportunityCreated:      {class: plain, tier: TierShort},
	EventOpportunityUpdated:      {class: plain, tier: TierShort},
	EventOpportunityStageChanged: {class: plain, tier: TierShort},
	EventOpportunityDeleted:      {class: Classification{Critical: true}, tier: TierShort},

	EventLoginSuccess:      {class: security, tier: TierShort},
	EventLoginFailure:      {class: security, failure: true, tier: TierShort},
	EventLogout:            {class: security, tier: TierShort},
	EventPermissionDenied:  {class: security, failure: true, notify: true, tier: TierShort},
	EventPasswordChanged:   {class: security, notify: true, tier: TierShort},
	EventRoleChanged:       {class: Classification{Critical: true, SecurityRelevant: true}, tier: TierShort},
	EventSecurityViolation: {class: Classification{Critical: true, SecurityRelevant: true}, failure: true, notify: true, tier: TierShort},

	EventConsentGiven:     {class: compliance, tier: TierLong, legalBasis: LegalBasisConsent},
	EventConsentWithdrawn: {class: Classification{Critical: true, ComplianceRelevant: true}, notify: true, tier: TierLong, legalBasis: LegalBasisConsent},

	EventDataExport:        {class: Classification{SecurityRelevant: true, ComplianceRelevant: true}, notify: true, tier: TierLong, legalBasis: LegalBasisLegalObligation},
	EventDataDeletion:      {class: Classification{Critical: true, ComplianceRelevant: true}, notify: true, tier: TierLong, legalBasis: LegalBasisLegalObligation},
	EventDataAccessRequest: {class: compliance, tier: TierLong, legalBasis: LegalBasisLegalObligation},
	EventDataRectification: {class: compliance, tier: TierLong, legalBasis: LegalBasisLegalObligation},
	EventDataPurge:         {class: Classification{Critical: true, ComplianceRelevant: true}, tier: TierLong, legalBasis: LegalBasisLegalObligation},

	EventSystemStartup:        {class: plain, tier: TierShort},
	EventSystemShutdown:       {class: plain, tier: TierShort},
	EventConfigurationChanged: {class: Classification{Critical: true, SecurityRelevant: true}, tier: TierShort},
	EventBulkOperation:        {class: plain, tier: TierShort},
	EventIntegrityCheckFailed: {class: Classification{Critical: true, SecurityRelevant: true, ComplianceRelevant: true}, failure: true, notify: true, tier: TierLong, legalBasis: LegalBasisLegalObligation},
}

// AllEventTypes lists the closed enumeration in declaration order.
var AllEventTypes = []EventType{
	EventCustomerCreated, EventCustomerUpdated, EventCustomerDeleted,
	EventLeadCreated, EventLeadUpdated, EventLeadConverted, EventLeadDeleted,
	EventOpportunityCreated, EventOpportunityUpdated, EventOpportunityStageChanged, EventOpportunityDeleted,
	EventLoginSuccess, EventLoginFailure, EventLogout, EventPermissionDenied,
	EventPasswordChanged, EventRoleChanged, EventSecurityViolation,
	EventConsentGiven, EventConsentWithdrawn,
	EventDataExport, EventDataDeletion, EventDataAccessRequest, EventDataRectification, EventDataPurge,
	EventSystemStartup, EventSystemShutdown, EventConfigurationChanged, EventBulkOperation, EventIntegrityCheckFailed,
}

// IsValid reports whether the event type belongs to the closed enumeration.
func (t EventType) IsValid() bool {
	_, ok := eventTraits[t]
	return ok
}

func (t EventType) String() string { return string(t) }

// Classification returns the fixed classification for t.
// Unknown event types fail with a PolicyError instead of defaulting.
func (t EventType) Classification() (Classification, error) {
	tr, ok := eventTraits[t]
	if !ok {
		return Classification{}, &PolicyError{EventType: t}
	}
	return tr.class, nil
}

// IsFailure reports whether t records a failed or rejected operation.
func (t EventType) IsFailure() bool {
	return eventTraits[t].failure
}

// RequiresNotification reports whether t is flagged for immediate notification
// regardless of its critical flag.
func (t EventType) RequiresNotification() bool {
	return eventTraits[t].notify
}

// RetentionTier returns the retention tier for t. Unknown types get TierShort;
// callers classify first, which rejects unknown types.
func (t EventType) RetentionTier() RetentionTier {
	return eventTraits[t].tier
}

// LegalBasis returns the legal basis attached to t, or LegalBasisNone.
func (t EventType) LegalBasis() LegalBasis {
	return eventTraits[t].legalBasis
}

// ParseEventType validates a raw event type name.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.IsValid() {
		return "", &PolicyError{EventType: t}
	}
	return t, nil
}

// FailureTypes returns every event type recording a failure.
func FailureTypes() []EventType {
	return selectTypes(func(tr traits) bool { return tr.failure })
}

// NotifiableTypes returns every event type flagged for notification independent of criticality.
func NotifiableTypes() []EventType {
	return selectTypes(func(tr traits) bool { return tr.notify })
}

// TypesInTier returns every event type with the given retention tier.
func TypesInTier(tier RetentionTier) []EventType {
	return selectTypes(func(tr traits) bool { return tr.tier == tier })
}

func selectTypes(keep func(traits) bool) []EventType {
	var out []EventType
	for _, t := range AllEventTypes {
		if keep(eventTraits[t]) {
			out = append(out, t)
		}
	}
	return out
}
