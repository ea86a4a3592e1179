package zkp

import (
	"crypto/subtle"

	"github.com/pkg/errors"
	"github.com/zkiotchain/zkiot/apierror"
)

var (
	// ErrUnknownScheme is returned when a scheme name is not declared.
	ErrUnknownScheme = errors.New("unknown proof scheme")
	// ErrSchemeNotImplemented is returned for declared schemes that have
	// no back-end yet.
	ErrSchemeNotImplemented = errors.New("proof scheme declared but not implemented")
)

// Scheme is one proof strategy. Implementations are pure: freshness,
// replay detection, and device lookup stay in the engine so every
// back-end shares the same failure taxonomy.
type Scheme interface {
	Name() SchemeName
	// Generate builds a proof of knowledge of secret for the given
	// attempt coordinates.
	Generate(deviceID string, secret []byte, nonce [16]byte, timestamp uint64) (*Proof, error)
	// Verify checks the proof against the registered commitment.
	Verify(proof *Proof, registered [32]byte) error
}

// ForName resolves a scheme strategy by its declared name.
func ForName(name SchemeName) (Scheme, error) {
	switch name {
	case SchemeSimple:
		return simpleScheme{}, nil
	case SchemeSnark, SchemeStark:
		return nil, errors.Wrapf(ErrSchemeNotImplemented, "%s", name)
	default:
		return nil, errors.Wrapf(ErrUnknownScheme, "%q", name)
	}
}

type simpleScheme struct{}

func (simpleScheme) Name() SchemeName {
	return SchemeSimple
}

func (simpleScheme) Generate(deviceID string, secret []byte, nonce [16]byte, timestamp uint64) (*Proof, error) {
	if deviceID == "" {
		return nil, errors.New("device id required")
	}
	if len(secret) == 0 {
		return nil, errors.New("secret required")
	}
	secretHash := SecretHash(secret)
	challenge := Challenge(deviceID, nonce, timestamp)
	return &Proof{
		Scheme:     SchemeSimple,
		DeviceID:   deviceID,
		Commitment: secretHash,
		Response:   Response(secretHash, challenge),
		Nonce:      nonce,
		Timestamp:  timestamp,
	}, nil
}

// Verify recomputes the registration commitment from the submitted
// secret hash and checks the response binding for (device, nonce, t).
// Comparisons are constant time.
func (simpleScheme) Verify(proof *Proof, registered [32]byte) error {
	recomputed := Commitment(proof.DeviceID, proof.Commitment)
	commitmentOk := subtle.ConstantTimeCompare(recomputed[:], registered[:])

	challenge := Challenge(proof.DeviceID, proof.Nonce, proof.Timestamp)
	expected := Response(proof.Commitment, challenge)
	responseOk := subtle.ConstantTimeCompare(expected[:], proof.Response[:])

	if commitmentOk&responseOk != 1 {
		return apierror.New(apierror.Unauthenticated, apierror.CodeBadProof, "proof does not match registered commitment")
	}
	return nil
}
