package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

/* Verifier proves that a raw webhook body originated from the holder of a
 * shared secret. Implementations are a small closed set of HMAC schemes,
 * selected per source by configuration.
 */

const (
	// DefaultHeader is the signature header used by the generic scheme
	DefaultHeader = "x-signature"

	// DefaultTolerance is the accepted clock skew for time-windowed signatures
	DefaultTolerance = 300 * time.Second
)

// Verifier validates a webhook signature over a raw payload.
// Malformed signatures verify false; verification never returns an error.
type Verifier interface {
	Verify(payload []byte, signature, secret string) bool
	HeaderName() string
}

// HexHMAC implements the generic hex-encoded HMAC-SHA256 scheme:
// signature = prefix + hex(HMAC_SHA256(secret, payload))
type HexHMAC struct {
	Prefix string
	Header string
}

// NewHexHMAC creates a generic verifier with the default x-signature header
func NewHexHMAC() HexHMAC {
	return HexHMAC{Header: DefaultHeader}
}

func (v HexHMAC) Verify(payload []byte, signature, secret string) bool {
	if v.Prefix != "" {
		if !strings.HasPrefix(signature, v.Prefix) {
			return false
		}
		signature = strings.TrimPrefix(signature, v.Prefix)
	}
	return constantTimeEqualHex(hmacSHA256(secret, payload), signature)
}

func (v HexHMAC) HeaderName() string {
	if v.Header == "" {
		return DefaultHeader
	}
	return v.Header
}

// PrefixedHMAC implements the "sha256=<hex digest>" scheme.
// A signature without the prefix is rejected outright.
type PrefixedHMAC struct {
	Prefix string
	Header string
}

// NewPrefixedHMAC creates a verifier for "sha256=<hex>" signatures
func NewPrefixedHMAC() PrefixedHMAC {
	return PrefixedHMAC{
		Prefix: "sha256=",
		Header: "x-hub-signature-256",
	}
}

func (v PrefixedHMAC) Verify(payload []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, v.Prefix) {
		return false
	}
	digest := strings.TrimPrefix(signature, v.Prefix)
	return constantTimeEqualHex(hmacSHA256(secret, payload), digest)
}

func (v PrefixedHMAC) HeaderName() string {
	return v.Header
}

// Base64HMAC is the generic scheme with a base64 digest instead of hex
type Base64HMAC struct {
	Header string
}

// NewBase64HMAC creates a verifier for base64-encoded HMAC signatures
func NewBase64HMAC() Base64HMAC {
	return Base64HMAC{Header: "x-webhook-signature"}
}

func (v Base64HMAC) Verify(payload []byte, signature, secret string) bool {
	supplied, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hmacSHA256(secret, payload), supplied) == 1
}

func (v Base64HMAC) HeaderName() string {
	return v.Header
}

/* TimeWindowedHMAC implements the payment-provider style scheme where the
 * signature header is a comma-separated key=value list carrying a unix
 * timestamp and the HMAC of "{t}.{payload}". The timestamp bounds replay:
 * signatures outside the tolerance window fail even with a correct HMAC.
 */
type TimeWindowedHMAC struct {
	Header    string
	Tolerance time.Duration

	// now is overridable for tests
	now func() time.Time
}

// NewTimeWindowedHMAC creates a verifier with the default 5 minute tolerance
func NewTimeWindowedHMAC() TimeWindowedHMAC {
	return TimeWindowedHMAC{
		Header:    "x-provider-signature",
		Tolerance: DefaultTolerance,
	}
}

func (v TimeWindowedHMAC) Verify(payload []byte, signature, secret string) bool {
	var timestamp, digest string
	for _, part := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			digest = value
		}
	}
	if timestamp == "" || digest == "" {
		return false
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	tolerance := v.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	now := time.Now()
	if v.now != nil {
		now = v.now()
	}
	drift := now.Sub(time.Unix(unix, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return false
	}

	signed := fmt.Sprintf("%s.%s", timestamp, payload)
	return constantTimeEqualHex(hmacSHA256(secret, []byte(signed)), digest)
}

func (v TimeWindowedHMAC) HeaderName() string {
	return v.Header
}

// New creates a verifier by scheme name, as referenced from source
// configuration. Unknown names fall back to the generic hex scheme.
func New(scheme string) Verifier {
	switch scheme {
	case "prefixed_hmac":
		return NewPrefixedHMAC()
	case "time_windowed_hmac":
		return NewTimeWindowedHMAC()
	case "base64_hmac":
		return NewBase64HMAC()
	default:
		return NewHexHMAC()
	}
}

// Sign computes the hex HMAC-SHA256 of payload. Exposed so tests and
// source onboarding tools can produce signatures the verifiers accept.
func Sign(secret string, payload []byte) string {
	return hex.EncodeToString(hmacSHA256(secret, payload))
}

// SignTimeWindowed builds a "t=...,v1=..." header value for the given instant
func SignTimeWindowed(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	signed := fmt.Sprintf("%s.%s", timestamp, payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, Sign(secret, []byte(signed)))
}

func hmacSHA256(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// constantTimeEqualHex compares a raw digest against its claimed hex encoding
// without leaking timing. A digest that is not valid hex compares false.
func constantTimeEqualHex(calculated []byte, suppliedHex string) bool {
	supplied, err := hex.DecodeString(suppliedHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(calculated, supplied) == 1
}
