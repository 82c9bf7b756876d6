package session

// Record is one tracked refresh-token session. A refresh token whose
// signature-level decode succeeds but which has no matching Record is not
// valid: the store is the authority for revocation.
type Record struct {
	UserID      int64
	Role        string
	Status      uint8
	Device      string
	RefreshHash [32]byte

	IssuedAt   int64
	LastSeenAt int64
	ExpiresAt  int64
}
