package webhook

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"ref":"refs/heads/main","repository":{"name":"widgets","full_name":"acme/widgets"}}`)
	valid := Sign(body, secret)

	tests := []struct {
		name       string
		body       []byte
		signature  string
		present    bool
		secret     string
		wantErr    error
		wantStatus int
	}{
		{name: "valid", body: body, signature: valid, present: true, secret: secret},
		{name: "empty body", body: []byte{}, signature: Sign(nil, secret), present: true, secret: secret},
		{
			name: "header absent", body: body, present: false, secret: secret,
			wantErr: ErrSignatureMissing, wantStatus: http.StatusUnauthorized,
		},
		{
			name: "empty header value", body: body, signature: "", present: true, secret: secret,
			wantErr: ErrSignatureFormat, wantStatus: http.StatusBadRequest,
		},
		{
			name: "plain hex without prefix", body: body, signature: valid[len("sha256="):], present: true, secret: secret,
			wantErr: ErrSignatureFormat, wantStatus: http.StatusBadRequest,
		},
		{
			name: "sha1 prefix", body: body, signature: "sha1=" + valid[len("sha256="):], present: true, secret: secret,
			wantErr: ErrSignatureFormat, wantStatus: http.StatusBadRequest,
		},
		{
			name: "non ascii header", body: body, signature: "sha256=caf\xc3\xa9", present: true, secret: secret,
			wantErr: ErrSignatureEncoding, wantStatus: http.StatusBadRequest,
		},
		{
			name: "control character", body: body, signature: "sha256=\x00abc", present: true, secret: secret,
			wantErr: ErrSignatureEncoding, wantStatus: http.StatusBadRequest,
		},
		{
			name: "empty secret", body: body, signature: valid, present: true, secret: "",
			wantErr: ErrSecretMissing, wantStatus: http.StatusInternalServerError,
		},
		{
			name: "tampered body", body: []byte(`{"repository":{"name":"x","full_name":"evil/x"}}`), signature: valid, present: true, secret: secret,
			wantErr: ErrSignatureMismatch, wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret", body: body, signature: valid, present: true, secret: "other",
			wantErr: ErrSignatureMismatch, wantStatus: http.StatusUnauthorized,
		},
		{
			name: "non hex digest", body: body, signature: "sha256=zzzz", present: true, secret: secret,
			wantErr: ErrSignatureMismatch, wantStatus: http.StatusUnauthorized,
		},
		{
			name: "truncated digest", body: body, signature: valid[:len(valid)-2], present: true, secret: secret,
			wantErr: ErrSignatureMismatch, wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.body, tt.signature, tt.present, tt.secret)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, StatusFor(err))
		})
	}
}

func TestVerify_AnySingleByteChangeFails(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"commits":[{"id":"abc123"}]}`)
	sig := Sign(body, secret)
	require.NoError(t, Verify(body, sig, true, secret))

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		err := Verify(mutated, sig, true, secret)
		assert.ErrorIs(t, err, ErrSignatureMismatch, "byte %d", i)
	}
}

func TestSign_Format(t *testing.T) {
	// Known vector from GitHub's webhook documentation.
	got := Sign([]byte("Hello, World!"), "It's a Secret to Everybody")
	assert.Equal(t, "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17", got)
}

func TestStatusFor_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
