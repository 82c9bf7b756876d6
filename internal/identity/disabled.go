package identity

import "context"

// Disabled is the [Verifier] used when no provider credentials are
// configured. Every token is rejected, which surfaces as invalid
// credentials rather than a server fault.
type Disabled struct{}

func NewDisabled() Disabled { return Disabled{} }

func (Disabled) Verify(context.Context, string, string) (External, error) {
	return External{}, ErrInvalidProviderToken
}
