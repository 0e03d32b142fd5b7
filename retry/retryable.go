package retry

import "strings"

/* Error classification: an error is retryable only if its message matches a
 * known transient class. Everything else is treated as permanent and goes
 * straight to the dead letter queue without consuming the retry budget.
 */

// defaultTransientMarkers are substrings identifying transient failure classes
var defaultTransientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"deadline exceeded",
	"no such host",
	"temporary failure in name resolution",
	"rate limit",
	"too many requests",
	"429",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"unexpected EOF",
}

// Classifier decides whether an error is worth retrying
type Classifier struct {
	markers []string
}

// NewClassifier creates a classifier with the default transient allow-list.
// Extra markers extend the list.
func NewClassifier(extra ...string) *Classifier {
	markers := make([]string, 0, len(defaultTransientMarkers)+len(extra))
	for _, marker := range defaultTransientMarkers {
		markers = append(markers, strings.ToLower(marker))
	}
	for _, marker := range extra {
		if marker != "" {
			markers = append(markers, strings.ToLower(marker))
		}
	}
	return &Classifier{markers: markers}
}

// Retryable reports whether err matches a transient error class
func (c *Classifier) Retryable(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(err.Error())
	for _, marker := range c.markers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
