// Package solana is a minimal JSON-RPC client and key toolkit for the Solana
// chain: address parsing, associated token account derivation, transaction
// signing and submission.
package solana

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and mint addresses.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID       = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	WrappedSOLMint           = "So11111111111111111111111111111111111111112"
	LamportsPerSOL           = 1_000_000_000
)

// ErrInvalidAddress is returned for strings that are not 32-byte base58 keys.
var ErrInvalidAddress = errors.New("invalid solana address")

// PublicKey is a 32-byte ed25519 public key or program address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != len(pk) {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey parses a compile-time constant address.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// IsValidAddress reports whether s is a well-formed base58 address.
func IsValidAddress(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point. Program
// derived addresses are never on the curve.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// FindProgramAddress derives the program address for seeds, searching bump
// seeds from 255 down for the first hash that is off the curve.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, byte, error) {
	for bump := 255; bump > 0; bump-- {
		var buf bytes.Buffer
		for _, s := range seeds {
			if len(s) > 32 {
				return PublicKey{}, 0, fmt.Errorf("solana: seed longer than 32 bytes")
			}
			buf.Write(s)
		}
		buf.WriteByte(byte(bump))
		buf.Write(programID[:])
		buf.WriteString("ProgramDerivedAddress")

		sum := sha256.Sum256(buf.Bytes())
		pk := PublicKey(sum)
		if !pk.IsOnCurve() {
			return pk, byte(bump), nil
		}
	}
	return PublicKey{}, 0, errors.New("solana: no viable bump seed")
}

// AssociatedTokenAddress returns the associated token account of owner for
// mint under the given token program.
func AssociatedTokenAddress(owner, mint, tokenProgram PublicKey) (PublicKey, error) {
	ata, _, err := FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		MustPublicKey(AssociatedTokenProgramID),
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("solana: associated token address: %w", err)
	}
	return ata, nil
}
