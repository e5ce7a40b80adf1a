package hub

import "errors"

// ErrBadToken is returned by a verifier when the presented token does
// not match. Sessions failing verification are closed, not kept open.
var ErrBadToken = errors.New("invalid auth token")

// TokenVerifier checks the token presented in an auth message before a
// session is treated as trusted.
type TokenVerifier interface {
	Verify(token string) error
}

type staticVerifier struct {
	secret string
}

// NewStaticVerifier verifies tokens against a shared secret. An empty
// secret accepts any token, which keeps local runs zero-config.
func NewStaticVerifier(secret string) TokenVerifier {
	return &staticVerifier{secret: secret}
}

func (v *staticVerifier) Verify(token string) error {
	if v.secret == "" {
		return nil
	}
	if token != v.secret {
		return ErrBadToken
	}
	return nil
}
