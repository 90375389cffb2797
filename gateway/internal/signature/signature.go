// Package signature verifies provider webhook signatures of the form
// "sha256=<hex HMAC-SHA256 of the raw body>", as sent by WhatsApp in
// X-Hub-Signature-256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Header is where providers put the signature.
const Header = "X-Hub-Signature-256"

const prefix = "sha256="

var (
	ErrMissing = errors.New("signature missing")
	ErrInvalid = errors.New("signature mismatch")
)

// Verifier holds one shared secret per provider. Providers without a secret
// are not checked.
type Verifier struct {
	secrets map[string][]byte
}

func NewVerifier(secrets map[string]string) *Verifier {
	v := &Verifier{secrets: make(map[string][]byte, len(secrets))}
	for provider, secret := range secrets {
		if secret != "" {
			v.secrets[strings.ToLower(provider)] = []byte(secret)
		}
	}
	return v
}

// Enabled reports whether provider has a secret configured.
func (v *Verifier) Enabled(provider string) bool {
	if v == nil {
		return false
	}
	_, ok := v.secrets[strings.ToLower(provider)]
	return ok
}

// Sign returns the header value for body, or "" when provider has no secret.
func (v *Verifier) Sign(provider string, body []byte) string {
	secret, ok := v.secrets[strings.ToLower(provider)]
	if !ok {
		return ""
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return prefix + hex.EncodeToString(h.Sum(nil))
}

// Verify checks header against body.
func (v *Verifier) Verify(provider string, body []byte, header string) error {
	if !v.Enabled(provider) {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissing
	}
	if !strings.HasPrefix(strings.ToLower(header), prefix) {
		return ErrInvalid
	}
	expected := v.Sign(provider, body)
	if !hmac.Equal([]byte(expected), []byte(prefix+strings.ToLower(header[len(prefix):]))) {
		return ErrInvalid
	}
	return nil
}
