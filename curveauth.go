// SPDX-License-Identifier: GPL-3.0-or-later

package meshmq

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// CurveAuthenticator resolves the verified CurveZMQ public key for a
// peer that has just completed a CurveZMQ handshake. meshmq never
// performs the handshake itself (§1 treats crypto primitives as
// assumed-available); it only asks the authenticator, after accept/
// connect, who the peer proved to be.
type CurveAuthenticator interface {
	// VerifiedPubkey returns the verified 32-byte curve pubkey for a
	// just-accepted/connected peer addressed by remoteAddr (the
	// [ProxyLoop] passes the peer's router routing identity), or
	// ok=false if remoteAddr is unknown or the listener is plaintext.
	VerifiedPubkey(remoteAddr string) (pubkey [32]byte, ok bool)
}

// NoCurveAuthenticator is the default [CurveAuthenticator] for plaintext
// listeners: every lookup reports ok=false, so peers on such a listener
// are never recognised as service nodes.
type NoCurveAuthenticator struct{}

var _ CurveAuthenticator = NoCurveAuthenticator{}

// VerifiedPubkey always reports ok=false.
func (NoCurveAuthenticator) VerifiedPubkey(remoteAddr string) ([32]byte, bool) {
	return [32]byte{}, false
}

// CurveKeypair is a generated X25519 keypair suitable for CurveZMQ.
type CurveKeypair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateCurveKeypair returns a fresh random X25519 keypair, for
// callers and tests that need a throwaway curve identity. meshmq's core
// never inspects private key material; this exists purely as a
// convenience around the curve library the rest of the stack assumes.
func GenerateCurveKeypair() (CurveKeypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return CurveKeypair{}, fmt.Errorf("meshmq: generate curve keypair: %w", err)
	}
	return CurveKeypair{Public: *pub, Private: *priv}, nil
}
