package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
)

const signatureLen = ed25519.SignatureSize

// ErrSignerNotFound is returned when the key is not a required signer of the
// transaction message.
var ErrSignerNotFound = errors.New("solana: signer not in transaction")

// decodeShortVec reads Solana's compact-u16 length prefix.
func decodeShortVec(b []byte) (int, int, error) {
	val := 0
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, errors.New("solana: truncated length prefix")
		}
		v := b[i]
		val |= int(v&0x7f) << (7 * i)
		if v&0x80 == 0 {
			return val, i + 1, nil
		}
	}
	return 0, 0, errors.New("solana: length prefix overflow")
}

// encodeShortVec writes a compact-u16 length prefix.
func encodeShortVec(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// SignTransaction fills key's signature slot of a serialised (legacy or v0)
// transaction, as returned unsigned by a swap API. The input is not modified.
func SignTransaction(tx []byte, key ed25519.PrivateKey) ([]byte, error) {
	numSigs, off, err := decodeShortVec(tx)
	if err != nil {
		return nil, err
	}
	sigEnd := off + numSigs*signatureLen
	if numSigs == 0 || len(tx) <= sigEnd {
		return nil, fmt.Errorf("solana: transaction too short for %d signatures", numSigs)
	}
	msg := tx[sigEnd:]

	p := 0
	if msg[0]&0x80 != 0 {
		p = 1 // versioned message prefix
	}
	if len(msg) < p+3 {
		return nil, errors.New("solana: truncated message header")
	}
	required := int(msg[p])
	p += 3

	numKeys, n, err := decodeShortVec(msg[p:])
	if err != nil {
		return nil, err
	}
	p += n
	if len(msg) < p+numKeys*32 {
		return nil, errors.New("solana: truncated account keys")
	}

	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("solana: bad private key")
	}
	idx := -1
	for i := 0; i < numKeys && i < required; i++ {
		if bytes.Equal(msg[p+32*i:p+32*i+32], pub) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= numSigs {
		return nil, ErrSignerNotFound
	}

	out := bytes.Clone(tx)
	copy(out[off+idx*signatureLen:], ed25519.Sign(key, msg))
	return out, nil
}
