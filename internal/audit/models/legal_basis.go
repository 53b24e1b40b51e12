package models

// LegalBasis is the GDPR Art. 6(1) justification attached to compliance-relevant entries.
type LegalBasis string

const (
	LegalBasisNone                LegalBasis = ""
	LegalBasisConsent             LegalBasis = "CONSENT"              // Art. 6(1)(a)
	LegalBasisContract            LegalBasis = "CONTRACT"             // Art. 6(1)(b)
	LegalBasisLegalObligation     LegalBasis = "LEGAL_OBLIGATION"     // Art. 6(1)(c)
	LegalBasisVitalInterests      LegalBasis = "VITAL_INTERESTS"      // Art. 6(1)(d)
	LegalBasisPublicTask          LegalBasis = "PUBLIC_TASK"          // Art. 6(1)(e)
	LegalBasisLegitimateInterests LegalBasis = "LEGITIMATE_INTERESTS" // Art. 6(1)(f)
)

// IsSet reports whether a legal basis was recorded.
func (b LegalBasis) IsSet() bool { return b != LegalBasisNone }

func (b LegalBasis) String() string { return string(b) }
