package webcash

import (
	"crypto/sha256"
	"encoding"
	"fmt"
)

// Midstate captures the SHA-256 state after absorbing a fixed message prefix,
// so that many candidate tails sharing that prefix can be hashed without
// re-processing the prefix blocks.  The miner aligns its base64-encoded
// preimage prefix to the 64-byte SHA-256 block size, which makes the capture
// a pure midstate with no buffered partial block.
type Midstate struct {
	state []byte
}

// NewMidstate absorbs prefix into a fresh SHA-256 instance and snapshots the
// resulting state.
func NewMidstate(prefix []byte) (*Midstate, error) {
	h := sha256.New()
	h.Write(prefix)
	m, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("sha256 digest does not support state capture")
	}
	state, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("capturing sha256 midstate: %w", err)
	}
	return &Midstate{state: state}, nil
}

// Sum appends tail to the captured prefix state and returns the final digest.
// It is safe for concurrent use; each call works on a fresh digest.
func (ms *Midstate) Sum(tail []byte) [32]byte {
	h := sha256.New()
	// Restoring a state this instance produced cannot fail.
	h.(encoding.BinaryUnmarshaler).UnmarshalBinary(ms.state)
	h.Write(tail)
	var out [32]byte
	h.Sum(out[:0])
	return out
}
