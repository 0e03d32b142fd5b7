package signature_test

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec-test-secret"

func TestHexHMAC(t *testing.T) {
	payload := []byte(`{"type":"user.created","id":"evt-1"}`)
	verifier := signature.NewHexHMAC()

	t.Run("valid signature verifies", func(t *testing.T) {
		sig := signature.Sign(testSecret, payload)
		assert.True(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		sig := signature.Sign(testSecret, payload)
		tampered := append([]byte{}, payload...)
		tampered[0] ^= 0x01
		assert.False(t, verifier.Verify(tampered, sig, testSecret))
	})

	t.Run("tampered signature fails", func(t *testing.T) {
		sig := signature.Sign(testSecret, payload)
		mutated := "0" + sig[1:]
		if mutated == sig {
			mutated = "1" + sig[1:]
		}
		assert.False(t, verifier.Verify(payload, mutated, testSecret))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		sig := signature.Sign("other-secret", payload)
		assert.False(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("non-hex signature fails without panicking", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, "not-hex-at-all", testSecret))
	})

	t.Run("truncated signature fails", func(t *testing.T) {
		sig := signature.Sign(testSecret, payload)
		assert.False(t, verifier.Verify(payload, sig[:16], testSecret))
	})

	t.Run("configured prefix is required", func(t *testing.T) {
		prefixed := signature.HexHMAC{Prefix: "hmac-", Header: "x-signature"}
		sig := signature.Sign(testSecret, payload)

		assert.True(t, prefixed.Verify(payload, "hmac-"+sig, testSecret))
		assert.False(t, prefixed.Verify(payload, sig, testSecret))
	})

	t.Run("default header", func(t *testing.T) {
		assert.Equal(t, "x-signature", verifier.HeaderName())
	})
}

func TestPrefixedHMAC(t *testing.T) {
	payload := []byte(`{"action":"opened"}`)
	verifier := signature.NewPrefixedHMAC()

	t.Run("valid prefixed signature verifies", func(t *testing.T) {
		sig := "sha256=" + signature.Sign(testSecret, payload)
		assert.True(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("missing prefix is rejected", func(t *testing.T) {
		sig := signature.Sign(testSecret, payload)
		assert.False(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("wrong digest fails", func(t *testing.T) {
		sig := "sha256=" + signature.Sign("wrong", payload)
		assert.False(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("header name", func(t *testing.T) {
		assert.Equal(t, "x-hub-signature-256", verifier.HeaderName())
	})
}

func TestBase64HMAC(t *testing.T) {
	payload := []byte(`{"event":"invoice.paid"}`)
	verifier := signature.NewBase64HMAC()

	sign := func(secret string) string {
		raw, err := hex.DecodeString(signature.Sign(secret, payload))
		require.NoError(t, err)
		return base64.StdEncoding.EncodeToString(raw)
	}

	t.Run("valid base64 signature verifies", func(t *testing.T) {
		assert.True(t, verifier.Verify(payload, sign(testSecret), testSecret))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, sign("wrong"), testSecret))
	})

	t.Run("invalid base64 fails without panicking", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, "%%%not-base64%%%", testSecret))
	})
}

func TestTimeWindowedHMAC(t *testing.T) {
	payload := []byte(`{"type":"charge.succeeded"}`)
	verifier := signature.NewTimeWindowedHMAC()

	t.Run("fresh signature verifies", func(t *testing.T) {
		sig := signature.SignTimeWindowed(testSecret, payload, time.Now())
		assert.True(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("expired timestamp fails with correct HMAC", func(t *testing.T) {
		stale := time.Now().Add(-10 * time.Minute)
		sig := signature.SignTimeWindowed(testSecret, payload, stale)
		assert.False(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("future timestamp outside tolerance fails", func(t *testing.T) {
		future := time.Now().Add(10 * time.Minute)
		sig := signature.SignTimeWindowed(testSecret, payload, future)
		assert.False(t, verifier.Verify(payload, sig, testSecret))
	})

	t.Run("missing timestamp field fails", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, "v1=deadbeef", testSecret))
	})

	t.Run("missing digest field fails", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, "t=1700000000", testSecret))
	})

	t.Run("non-numeric timestamp fails", func(t *testing.T) {
		assert.False(t, verifier.Verify(payload, "t=soon,v1=deadbeef", testSecret))
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		sig := signature.SignTimeWindowed(testSecret, payload, time.Now())
		assert.False(t, verifier.Verify([]byte(`{"type":"charge.failed"}`), sig, testSecret))
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		scheme string
		header string
	}{
		{"hmac_sha256", "x-signature"},
		{"prefixed_hmac", "x-hub-signature-256"},
		{"time_windowed_hmac", "x-provider-signature"},
		{"base64_hmac", "x-webhook-signature"},
		{"unknown-scheme", "x-signature"},
	}

	for _, tc := range tests {
		t.Run(tc.scheme, func(t *testing.T) {
			verifier := signature.New(tc.scheme)
			require.NotNil(t, verifier)
			assert.Equal(t, tc.header, verifier.HeaderName())
		})
	}
}
