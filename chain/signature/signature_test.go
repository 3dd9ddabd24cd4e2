package signature_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/deltachain/core/chain/signature"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func Test_SignAndVerify(t *testing.T) {
	value := struct{ Name string }{Name: "Bill"}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(value, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	addr, err := signature.Verify(value, sig)
	if err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	want := crypto.PubkeyToAddress(pk.PublicKey).String()
	if addr != want {
		t.Fatalf("got address %s, want %s", addr, want)
	}
}

func Test_VerifyRejectsTamperedValue(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	original := struct{ Name string }{Name: "Bill"}
	sig, err := signature.Sign(original, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	tampered := struct{ Name string }{Name: "Jill"}
	addr, err := signature.Verify(tampered, sig)
	if err == nil && addr == crypto.PubkeyToAddress(pk.PublicKey).String() {
		t.Fatalf("Should not attribute a signature over a different value to the signer")
	}
}

func Test_HashIsStable(t *testing.T) {
	value := struct{ Name string }{Name: "Bill"}

	h1 := signature.Hash(value)
	h2 := signature.Hash(value)
	if h1 != h2 {
		t.Fatalf("Should get back the same hash twice: got %s and %s", h1, h2)
	}
	if h1 == "" {
		t.Fatalf("Should not return an empty hash")
	}
}

func Test_Ripemd160HexDeterministic(t *testing.T) {
	h1 := signature.Ripemd160Hex([]byte("secret"))
	h2 := signature.Ripemd160Hex([]byte("secret"))
	if h1 != h2 {
		t.Fatalf("Ripemd160Hex should be deterministic: got %s and %s", h1, h2)
	}
	if h1 == signature.Ripemd160Hex([]byte("other")) {
		t.Fatalf("different inputs should hash differently")
	}
}

func Test_DeriveNextSeedChangesWithEitherInput(t *testing.T) {
	base := signature.DeriveNextSeed("secretA", "seed0")

	if base == signature.DeriveNextSeed("secretB", "seed0") {
		t.Fatalf("changing the previous secret should change the derived seed")
	}
	if base == signature.DeriveNextSeed("secretA", "seed1") {
		t.Fatalf("changing the current seed should change the derived seed")
	}
}
