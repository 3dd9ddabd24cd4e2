// Package eventstream fans block-applied and state-changed notifications
// out to websocket subscribers. The channel registry is the teacher's
// foundation/events pattern, generalized from bare strings to typed
// chain events.
package eventstream

import (
	"encoding/json"
	"sync"

	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/overlay"
)

// Stream implements engine.Observer and distributes each notification to
// every currently registered subscriber channel.
type Stream struct {
	mu sync.RWMutex
	m  map[string]chan []byte
}

// New constructs an empty Stream.
func New() *Stream {
	return &Stream{m: make(map[string]chan []byte)}
}

// Acquire returns a channel that will receive every future notification,
// registered under id.
func (s *Stream) Acquire(id string) chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.m[id]; ok {
		return ch
	}
	const messageBuffer = 100
	ch := make(chan []byte, messageBuffer)
	s.m[id] = ch
	return ch
}

// Release closes and forgets id's channel.
func (s *Stream) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.m[id]; ok {
		delete(s.m, id)
		close(ch)
	}
}

func (s *Stream) broadcast(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.m {
		select {
		case ch <- raw:
		default:
		}
	}
}

// BlockApplied implements engine.Observer.
func (s *Stream) BlockApplied(summary engine.BlockSummary) {
	s.broadcast(struct {
		Type    string                `json:"type"`
		Summary engine.BlockSummary   `json:"summary"`
	}{"block_applied", summary})
}

// StateChanged implements engine.Observer. The undo delta itself is not
// serializable in a stable wire form yet, so subscribers are only told a
// state change happened; Query the engine for specifics.
func (s *Stream) StateChanged(_ *overlay.State) {
	s.broadcast(struct {
		Type string `json:"type"`
	}{"state_changed"})
}
