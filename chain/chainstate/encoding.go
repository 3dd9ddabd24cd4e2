package chainstate

import "encoding/binary"

// u64Key encodes an integer id as a big-endian 8-byte key so that
// lower-bound iteration over the kv store yields ascending numeric order.
func u64Key(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeU64Key(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
