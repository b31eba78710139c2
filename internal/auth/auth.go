package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidToken is returned for any credential that cannot be verified.
var ErrInvalidToken = errors.New("invalid or expired token")

// ExternalIdentity is what the identity provider asserts about a credential.
type ExternalIdentity struct {
	UID   string
	Name  string
	Email string
}

// TokenVerifier maps an opaque credential to a stable external identity.
// It is called once per connection handshake and once per authenticated
// HTTP request. The concrete provider is wired in at startup.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*ExternalIdentity, error)
}

// DevVerifier accepts HMAC-signed development tokens so the service runs
// end to end without a provider account. Production deployments supply a
// real TokenVerifier instead.
type DevVerifier struct {
	secret []byte
}

// NewDevVerifier creates a verifier keyed by secret.
func NewDevVerifier(secret string) *DevVerifier {
	return &DevVerifier{secret: []byte(secret)}
}

// Verify checks a token minted by SignDevToken.
func (v *DevVerifier) Verify(_ context.Context, token string) (*ExternalIdentity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	uidRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	nameRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(parts[2])) {
		return nil, ErrInvalidToken
	}

	uid := string(uidRaw)
	if uid == "" {
		return nil, ErrInvalidToken
	}

	return &ExternalIdentity{UID: uid, Name: string(nameRaw)}, nil
}

// SignDevToken mints a token DevVerifier accepts. Used by tests and local
// tooling.
func SignDevToken(secret, uid, name string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(uid)) +
		"." + base64.RawURLEncoding.EncodeToString([]byte(name))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}
