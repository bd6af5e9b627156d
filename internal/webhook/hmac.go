package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

const signaturePrefix = "sha256="

var (
	ErrSignatureMissing  = errors.New("missing signature header")
	ErrSignatureEncoding = errors.New("signature header is not valid text")
	ErrSignatureFormat   = errors.New("signature must start with sha256=")
	ErrSecretMissing     = errors.New("webhook secret is not configured")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrBodyTooLarge      = errors.New("payload too large")
	ErrBodyUnreadable    = errors.New("failed to read request body")
)

// VerifyError is an authentication failure with the HTTP status it maps to.
type VerifyError struct {
	Status int
	Err    error
}

func (e *VerifyError) Error() string { return e.Err.Error() }

func (e *VerifyError) Unwrap() error { return e.Err }

func reject(status int, err error) *VerifyError {
	return &VerifyError{Status: status, Err: err}
}

// StatusFor returns the HTTP status for a verification error, 500 for anything unexpected.
func StatusFor(err error) int {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Status
	}
	return http.StatusInternalServerError
}

// Verify checks that signature is "sha256=" followed by the hex HMAC-SHA256 of body
// keyed with secret. present reports whether the header was sent at all, so an
// empty header value is told apart from a missing one. The digest comparison is
// constant time.
func Verify(body []byte, signature string, present bool, secret string) error {
	digest, err := ParseSignature(signature, present)
	if err != nil {
		return err
	}
	return VerifyDigest(body, digest, secret)
}

// ParseSignature validates the signature header on its own and returns the hex
// digest after the "sha256=" prefix. It needs no body, so it runs before the body is read.
func ParseSignature(signature string, present bool) (string, error) {
	if !present {
		return "", reject(http.StatusUnauthorized, ErrSignatureMissing)
	}
	if !isHeaderText(signature) {
		return "", reject(http.StatusBadRequest, ErrSignatureEncoding)
	}
	digest, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return "", reject(http.StatusBadRequest, ErrSignatureFormat)
	}
	return digest, nil
}

// VerifyDigest compares digest with the HMAC-SHA256 of body in constant time.
func VerifyDigest(body []byte, digest, secret string) error {
	if secret == "" {
		return reject(http.StatusInternalServerError, ErrSecretMissing)
	}
	expected := computeDigest(body, secret)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return reject(http.StatusUnauthorized, ErrSignatureMismatch)
	}
	return nil
}

// Sign returns the header value GitHub would send for body.
func Sign(body []byte, secret string) string {
	return signaturePrefix + computeDigest(body, secret)
}

func computeDigest(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// isHeaderText reports whether v holds only visible ASCII, space or tab.
func isHeaderText(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\t' && (c < 0x20 || c > 0x7e) {
			return false
		}
	}
	return true
}
