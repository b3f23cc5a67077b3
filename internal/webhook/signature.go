package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/sells-group/lead-intel/internal/apperr"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Webhook-Signature"

const (
	minSecretLen = 16
	maxSecretLen = 256
)

// Sign returns "sha256=<hex>" for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// ValidateSecret rejects secrets that cannot sign reliably. It runs when a
// subscriber is created or edited so dispatch never meets a bad secret.
func ValidateSecret(secret string) error {
	if secret == "" {
		return nil
	}
	if len(secret) < minSecretLen || len(secret) > maxSecretLen {
		return apperr.Newf(apperr.KindValidation, apperr.CodeInvalidWebhook,
			"secret must be %d to %d bytes", minSecretLen, maxSecretLen)
	}
	if strings.IndexFunc(secret, func(r rune) bool { return !unicode.IsPrint(r) || unicode.IsSpace(r) }) >= 0 {
		return apperr.New(apperr.KindValidation, apperr.CodeInvalidWebhook, "secret must be printable with no whitespace")
	}
	return nil
}
