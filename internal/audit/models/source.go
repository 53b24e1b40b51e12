package models

// Source describes where the audited request originated.
type Source string

const (
	SourceUI          Source = "UI"
	SourceAPI         Source = "API"
	SourceSystem      Source = "SYSTEM"
	SourceWebhook     Source = "WEBHOOK"
	SourceBatch       Source = "BATCH"
	SourceMobile      Source = "MOBILE"
	SourceCLI         Source = "CLI"
	SourceIntegration Source = "INTEGRATION"
	SourceTest        Source = "TEST"
)

var validSources = map[Source]struct{}{
	SourceUI: {}, SourceAPI: {}, SourceSystem: {}, SourceWebhook: {}, SourceBatch: {},
	SourceMobile: {}, SourceCLI: {}, SourceIntegration: {}, SourceTest: {},
}

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	_, ok := validSources[s]
	return ok
}

func (s Source) String() string { return string(s) }
