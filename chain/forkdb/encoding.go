package forkdb

import (
	"encoding/json"

	"github.com/deltachain/core/chain/kv"
)

func unmarshal(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}

func marshalPut(s kv.Store, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(key, raw)
}
