// Package delegatekey loads the signing key and secret-chain state a
// block-producing delegate needs, the way the teacher's node main.go
// loads its miner's .ecdsa file.
package delegatekey

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

// Key is a delegate's block-signing key plus the secret it last revealed,
// persisted across restarts so the secret chain survives a process
// restart without forcing a missed block.
type Key struct {
	Private *ecdsa.PrivateKey
	statePath string
	Secret  string `json:"secret"`
}

// Load reads the ECDSA key at keyPath and the secret-chain state at
// statePath, creating a fresh random secret if statePath does not exist
// yet (first run for this delegate).
func Load(keyPath, statePath string) (*Key, error) {
	priv, err := crypto.LoadECDSA(keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading delegate key: %w", err)
	}

	k := &Key{Private: priv, statePath: statePath}
	raw, err := os.ReadFile(statePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, k); err != nil {
			return nil, fmt.Errorf("parsing secret state: %w", err)
		}
	case os.IsNotExist(err):
		k.Secret = randomSecret()
		if err := k.save(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading secret state: %w", err)
	}
	return k, nil
}

// Reveal returns the secret committed by this delegate's last produced
// block and rotates in a fresh one for the block now being produced.
func (k *Key) Reveal() (revealed string, err error) {
	revealed = k.Secret
	k.Secret = randomSecret()
	return revealed, k.save()
}

func (k *Key) save() error {
	raw, err := json.Marshal(k)
	if err != nil {
		return err
	}
	return os.WriteFile(k.statePath, raw, 0o600)
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
