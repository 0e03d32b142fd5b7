package sources

import (
	"fmt"
	"regexp"

	"github.com/marcelsud/webhook-pipeline/webhook"
	"github.com/marcelsud/webhook-pipeline/webhook/signature"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// verifierSchemes are the signature.New names accepted in sources.yaml
var verifierSchemes = map[string]bool{
	"":                   true,
	"hmac":               true,
	"prefixed_hmac":      true,
	"time_windowed_hmac": true,
	"base64_hmac":        true,
}

/* Source represents one webhook provider configuration
 * Maps a source name to its secret, verification scheme, and event filter
 */
type Source struct {
	Name          string
	Secret        string
	Verifier      string
	Enabled       bool
	AllowedEvents []string // Event types to route (e.g., ["charge.succeeded", "charge.*"])
	Metadata      map[string]string
}

// Validate checks if the source configuration is valid
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if !verifierSchemes[s.Verifier] {
		return fmt.Errorf("unknown signature_verifier %q for source %s", s.Verifier, s.Name)
	}
	if s.Secret == "" && s.Verifier != "" {
		return fmt.Errorf("signature_verifier set without a secret for source %s", s.Name)
	}
	for _, eventType := range s.AllowedEvents {
		if err := ValidateEventType(eventType); err != nil {
			return fmt.Errorf("invalid allowed_event '%s' for source %s: %w", eventType, s.Name, err)
		}
	}
	return nil
}

// HandlerConfig converts the source into the handler's registration form
func (s *Source) HandlerConfig() webhook.SourceConfig {
	config := webhook.SourceConfig{
		Source:        s.Name,
		Secret:        s.Secret,
		Enabled:       s.Enabled,
		AllowedEvents: s.AllowedEvents,
		Metadata:      s.Metadata,
	}
	if s.Secret != "" {
		config.Verifier = signature.New(s.Verifier)
	}
	return config
}

// ValidateEventType checks an allow-list entry, permitting a ".*"
// wildcard suffix
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if eventType == webhook.Wildcard {
		return nil
	}

	if len(eventType) > 2 && eventType[len(eventType)-2:] == ".*" {
		eventType = eventType[:len(eventType)-2]
	}

	if !eventTypePattern.MatchString(eventType) {
		return fmt.Errorf("event type must be hierarchical and contain only [a-zA-Z0-9_.]: %s", eventType)
	}

	return nil
}
