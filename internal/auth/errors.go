package auth

import "errors"

var (
	// ErrValidation covers malformed or missing request input.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidCredentials is the uniform failure for bad passwords and bad
	// or unknown OTP codes; it never reveals whether the identifier exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthRequired is returned when a protected route has no usable bearer token.
	ErrAuthRequired = errors.New("authentication required")
	// ErrTokenExpired is returned for expired access tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed or tampered tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionRevoked is returned when a refresh token has no live session record.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrAccountDeleted blocks all issuance for deleted accounts.
	ErrAccountDeleted = errors.New("account deleted")
	// ErrAccountPending blocks issuance until the account completes verification.
	ErrAccountPending = errors.New("account pending verification")
	// ErrTooManyAttempts is returned once the OTP attempt budget is exhausted.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrDuplicateAccount is returned when registration hits an existing identifier.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrAttestation is returned when the device-attestation payload is
	// malformed or its challenge was already consumed.
	ErrAttestation = errors.New("attestation rejected")
	// ErrNotFound is returned for lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when a backing store failed during a
	// security-relevant operation; never downgraded to success.
	ErrUnavailable = errors.New("auth backend unavailable")
)
