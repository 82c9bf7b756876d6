package auth

import "encoding/base64"

const challengeSize = 32

// Capability values under which the client cannot produce an attestation and
// receives a plain anonymous session instead.
const (
	capabilityUnsupportedFallback = "unsupported-fallback"
	capabilityNoAttestation       = "no-attestation-capability"
)

type attestationPayload struct {
	KeyID             []byte
	AttestationObject []byte
	ClientDataHash    []byte
	Challenge         []byte
}

// parseAttestation validates the shape of a device-attestation payload:
// every field present and base64-decodable, and the challenge exactly 32 raw
// bytes. Cryptographic verification of the attestation object happens
// upstream at the platform service; this layer owns shape and replay.
func parseAttestation(req initRequest) (*attestationPayload, bool) {
	if req.KeyID == "" || req.AttestationObject == "" || req.ClientDataHash == "" || req.Challenge == "" {
		return nil, false
	}

	decoded := make([][]byte, 0, 4)
	for _, field := range []string{req.KeyID, req.AttestationObject, req.ClientDataHash, req.Challenge} {
		raw, err := base64.StdEncoding.DecodeString(field)
		if err != nil {
			return nil, false
		}
		decoded = append(decoded, raw)
	}

	if len(decoded[3]) != challengeSize {
		return nil, false
	}

	return &attestationPayload{
		KeyID:             decoded[0],
		AttestationObject: decoded[1],
		ClientDataHash:    decoded[2],
		Challenge:         decoded[3],
	}, true
}
