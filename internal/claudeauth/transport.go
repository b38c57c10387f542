package claudeauth

import (
	"net/http"
)

// Transport is an http.RoundTripper that authenticates outbound requests
// with the resolved credential. It resolves through the AuthManager on
// every request, so OAuth-sourced requests pick up refreshed tokens without
// the caller doing anything.
//
// OAuth tokens are sent as "Authorization: Bearer ..."; API keys as the
// "x-api-key" header, matching the wrapped API's two authentication modes.
type Transport struct {
	Auth *AuthManager
	// Base is the underlying round tripper; http.DefaultTransport when nil.
	Base http.RoundTripper
}

// NewTransport wraps base with credential injection.
func NewTransport(auth *AuthManager, base http.RoundTripper) *Transport {
	return &Transport{Auth: auth, Base: base}
}

// RoundTrip resolves a credential and forwards the request. The request is
// cloned before mutation, per the RoundTripper contract.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cred, err := t.Auth.Credential(req.Context())
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	switch cred.Method {
	case MethodOAuth:
		out.Header.Set("Authorization", "Bearer "+cred.Value)
	default:
		out.Header.Set("x-api-key", cred.Value)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

var _ http.RoundTripper = (*Transport)(nil)
