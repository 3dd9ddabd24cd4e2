package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHeader returns the block id for a header: the sha256 of its packed
// form (excluding the signee signature), hex encoded with a 0x prefix.
// This is a plain content hash, not a signature — the recoverable-ECDSA
// primitives the evaluator needs for transaction signing live in
// chain/signature, kept separate so this package never imports a crypto
// curve implementation.
func HashHeader(h BlockHeader) BlockID {
	sum := sha256.Sum256(Pack(h))
	return BlockID("0x" + hex.EncodeToString(sum[:]))
}

// HashBytes is a small helper shared by code that needs a content hash of
// arbitrary packed bytes (the genesis chain-id derivation, for instance).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "0x" + hex.EncodeToString(sum[:])
}
