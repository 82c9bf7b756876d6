// Package identity is the boundary to external identity providers used by
// social sign-in. Provider token verification is a black box from the
// authentication core's point of view: a provider token goes in, a verified
// (subject, email, name) triple comes out.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidProviderToken is returned when the provider rejects the token.
var ErrInvalidProviderToken = errors.New("invalid provider token")

// Provider names accepted by the service.
const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

// External is the verified identity returned by a provider.
type External struct {
	Subject string
	Email   string
	Name    string
}

// Verifier validates a provider-issued identity token.
type Verifier interface {
	Verify(ctx context.Context, provider, providerToken string) (External, error)
}
