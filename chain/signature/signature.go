// Package signature adapts the recoverable-ECDSA and ripemd160 primitives
// the engine needs at its boundary (signing/verifying transactions and
// block signees, checking a delegate's secret chain). Per spec.md §1 these
// primitives are treated as an external collaborator; this package is the
// thin, real-library adapter rather than a reimplementation of either
// curve arithmetic or the hash function.
package signature

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // spec requires ripemd160 for the secret chain
)

// chainStamp makes signatures produced for this engine distinguishable
// from signatures over the same bytes produced by another protocol, the
// same way the teacher's "Ardan Signed Message" stamp does.
const chainStamp = "\x19DeltaChain Signed Message:\n32"

// Hash returns the Keccak-256 content hash of any JSON-marshalable
// value, hex encoded with a 0x prefix.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return hexutil.Encode(crypto.Keccak256(data))
}

// Sign produces a signature over value using privateKey, returned as a
// 0x-prefixed hex string of the [R|S|V] bytes.
func Sign(value any, privateKey *ecdsa.PrivateKey) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// Verify recovers the address that produced sigHex over value. It does
// not know the expected signer: a signature made over different data
// recovers a different address rather than an error, so callers compare
// the returned address with the signer they expect.
func Verify(value any, sigHex string) (string, error) {
	data, err := stamp(value)
	if err != nil {
		return "", err
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return "", err
	}
	if len(sig) != crypto.SignatureLength {
		return "", errors.New("invalid signature length")
	}
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, sig[:crypto.RecoveryIDOffset]) {
		return "", errors.New("invalid signature")
	}
	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	txHash := crypto.Keccak256(v)
	return crypto.Keccak256([]byte(chainStamp), txHash), nil
}

// Ripemd160Hex hashes b with RIPEMD-160 and returns it hex encoded with a
// 0x prefix, used to validate a delegate's revealed previous_secret against
// the next_secret_hash its parent block committed to (spec.md §4.6 step 5)
// and to derive the next random seed (spec.md §4.6 step 10).
func Ripemd160Hex(b []byte) string {
	h := ripemd160.New()
	h.Write(b) //nolint:errcheck // ripemd160.Write never errors
	return hexutil.Encode(h.Sum(nil))
}

// DeriveNextSeed implements spec.md §4.6 step 10:
// seed' = ripemd160(pack(previous_secret) || pack(current_seed)).
func DeriveNextSeed(previousSecret, currentSeed string) string {
	return Ripemd160Hex([]byte(previousSecret + currentSeed))
}

// RecoverPublicKeyToAddress is a small helper used by block-signee
// recovery so the engine does not need to touch go-ethereum types
// directly outside this package.
func RecoverPublicKeyToAddress(pub *ecdsa.PublicKey) string {
	return crypto.PubkeyToAddress(*pub).String()
}

// ToBigInts splits a 65-byte [R|S|V] signature into its three components,
// kept for callers that need to reconstruct wire-compatible signatures.
func ToBigInts(sig []byte) (r, s, v *big.Int, err error) {
	if len(sig) != crypto.SignatureLength {
		return nil, nil, nil, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64]})
	return r, s, v, nil
}
