// Package signing produces and verifies ed25519 signatures over webhook
// payloads so receivers can authenticate callbacks.
package signing

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/stellar/go/keypair"
)

// SignatureHeader is the HTTP header carrying the payload signature on every
// delivery request.
const SignatureHeader = "X-Request-ED25519-Signature"

var errNoSecret = errors.New("signing: secret seed required to sign")

// Signer signs payloads with an ed25519 key. It is constructed from either a
// secret seed (S...), enabling both signing and verification, or a public key
// (G...), enabling verification only.
type Signer struct {
	full *keypair.Full
	addr *keypair.FromAddress
}

// New parses a strkey-encoded seed or public key.
func New(seedOrAddress string) (*Signer, error) {
	kp, err := keypair.Parse(seedOrAddress)
	if err != nil {
		return nil, fmt.Errorf("signing: invalid key %q: %w", seedOrAddress, err)
	}
	switch k := kp.(type) {
	case *keypair.Full:
		return &Signer{full: k, addr: k.FromAddress()}, nil
	case *keypair.FromAddress:
		return &Signer{addr: k}, nil
	default:
		return nil, fmt.Errorf("signing: unsupported key type %T", kp)
	}
}

// CanSign reports whether the signer holds a secret seed.
func (s *Signer) CanSign() bool { return s.full != nil }

// PublicKey returns the strkey-encoded public key.
func (s *Signer) PublicKey() string { return s.addr.Address() }

// Sign returns the base64-encoded ed25519 signature of data.
func (s *Signer) Sign(data []byte) (string, error) {
	if s.full == nil {
		return "", errNoSecret
	}
	sig, err := s.full.Sign(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64-encoded signature against data.
func (s *Signer) Verify(data []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("signing: malformed signature: %w", err)
	}
	return s.addr.Verify(data, sig)
}

// Random generates a fresh keypair, used when no secret is configured so the
// process can still sign deliveries for its lifetime.
func Random() (*Signer, error) {
	kp, err := keypair.Random()
	if err != nil {
		return nil, err
	}
	return &Signer{full: kp, addr: kp.FromAddress()}, nil
}
