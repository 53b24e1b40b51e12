// Package alert delivers audit alerts to webhook destinations.
package alert

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"audittrail/internal/audit/models"
)

const (
	FormatGeneric = "generic"
	FormatSlack   = "slack"
)

// Match keywords usable in Webhook.Events besides plain event type names.
const (
	MatchAll        = "*"
	MatchCritical   = "critical"
	MatchSecurity   = "security"
	MatchCompliance = "compliance"
)

// Webhook is one alert destination.
type Webhook struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Format  string            `yaml:"format"`
	Events  []string          `yaml:"events"`
	Headers map[string]string `yaml:"headers"`
}

// Config is the alerter configuration file.
type Config struct {
	Webhooks []Webhook `yaml:"webhooks"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse alert config: %w", err)
	}
	for i := range cfg.Webhooks {
		if err := cfg.Webhooks[i].normalize(); err != nil {
			return nil, fmt.Errorf("webhook %d: %w", i, err)
		}
	}
	return &cfg, nil
}

func (w *Webhook) normalize() error {
	if w.URL == "" {
		return fmt.Errorf("url is required")
	}
	w.Format = strings.ToLower(w.Format)
	switch w.Format {
	case "":
		w.Format = FormatGeneric
	case FormatGeneric, FormatSlack:
	default:
		return fmt.Errorf("unknown format %q", w.Format)
	}
	if w.Name == "" {
		w.Name = w.URL
	}
	for _, e := range w.Events {
		switch strings.ToLower(e) {
		case MatchAll, MatchCritical, MatchSecurity, MatchCompliance:
			continue
		}
		if !models.EventType(e).IsValid() {
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}

// Matches reports whether the webhook wants the notification. An empty Events
// list matches everything.
func (w Webhook) Matches(n models.Notification) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		switch strings.ToLower(e) {
		case MatchAll:
			return true
		case MatchCritical:
			if n.Critical {
				return true
			}
		case MatchSecurity:
			if n.SecurityRelevant {
				return true
			}
		case MatchCompliance:
			if n.ComplianceRelevant {
				return true
			}
		default:
			if models.EventType(e) == n.EventType {
				return true
			}
		}
	}
	return false
}
