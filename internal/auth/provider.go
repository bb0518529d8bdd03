// Package auth supplies the Authorization value attached to every submission.
// Tokens are computed once per run and carried unchanged.
package auth

import (
	"context"
	"net/http"
)

// Provider defines the interface for authentication providers that can
// obtain tokens and inject them into HTTP requests.
type Provider interface {
	// Token returns the token without the "Bearer " scheme prefix.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header of req.
	InjectHeader(ctx context.Context, req *http.Request) error

	// Close releases any resources held by the provider.
	Close() error
}

// HeaderValue returns the full Authorization header value for p, for
// transports that build their own headers.
func HeaderValue(ctx context.Context, p Provider) (string, error) {
	token, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Header returns an http.Header carrying the Authorization value of p. A nil
// provider yields an empty header.
func Header(ctx context.Context, p Provider) (http.Header, error) {
	h := http.Header{}
	if p == nil {
		return h, nil
	}
	value, err := HeaderValue(ctx, p)
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", value)
	return h, nil
}
