package domaintest

import (
	"fmt"
	"sync/atomic"
)

// SequenceCodes yields zero-padded codes "000001", "000002", ... sized to the
// requested length. It satisfies the OTP services' code generator interface.
type SequenceCodes struct {
	n atomic.Int64
}

// Generate returns the next code in the sequence.
func (s *SequenceCodes) Generate(length int) (string, error) {
	return fmt.Sprintf("%0*d", length, s.n.Add(1)), nil
}

// Issued reports how many codes have been handed out.
func (s *SequenceCodes) Issued() int {
	return int(s.n.Load())
}

// FixedCode always returns the same code regardless of length.
type FixedCode string

// Generate returns c.
func (c FixedCode) Generate(int) (string, error) {
	return string(c), nil
}
