package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"entry":[]}`)

	tests := []struct {
		name     string
		secret   string
		body     []byte
		header   string
		expected bool
	}{
		{
			name:     "Valid Signature",
			secret:   secret,
			body:     body,
			header:   signBody(secret, body),
			expected: true,
		},
		{
			name:     "Wrong Secret",
			secret:   secret,
			body:     body,
			header:   signBody("other-secret", body),
			expected: false,
		},
		{
			name:     "Tampered Body",
			secret:   secret,
			body:     []byte(`{"entry":[{}]}`),
			header:   signBody(secret, body),
			expected: false,
		},
		{
			name:     "Missing Header",
			secret:   secret,
			body:     body,
			header:   "",
			expected: false,
		},
		{
			name:     "Missing Prefix",
			secret:   secret,
			body:     body,
			header:   hex.EncodeToString([]byte("raw-digest-no-prefix")),
			expected: false,
		},
		{
			name:     "Non Hex Digest",
			secret:   secret,
			body:     body,
			header:   signaturePrefix + "not-hex-at-all",
			expected: false,
		},
		{
			name:     "Empty Secret Always Rejects",
			secret:   "",
			body:     body,
			header:   signBody("", body),
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, VerifySignature(tc.secret, tc.body, tc.header))
		})
	}
}
