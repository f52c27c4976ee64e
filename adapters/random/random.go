// Package random provides Random implementations used for share link
// tokens and generated secrets.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/artpar/recordbase/ports"
)

// Real reads from crypto/rand.
type Real struct{}

// Bytes returns n random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// String returns n random lowercase hex characters.
func (r Real) String(n int) (string, error) {
	b, err := r.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}

var _ ports.Random = Real{}

// Fake hands out predictable tokens for tests.
type Fake struct {
	mu     sync.Mutex
	n      int
	tokens []string
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithTokens queues strings returned by String before falling back to
// counter-derived output.
func (f *Fake) WithTokens(tokens ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, tokens...)
	return f
}

// Bytes returns n bytes derived from a call counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next(n), nil
}

func (f *Fake) next(n int) []byte {
	f.n++
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(f.n + i)
	}
	return b
}

// String returns the next queued token, or n hex characters derived from
// the call counter.
func (f *Fake) String(n int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) > 0 {
		tok := f.tokens[0]
		f.tokens = f.tokens[1:]
		return tok, nil
	}
	return hex.EncodeToString(f.next((n + 1) / 2))[:n], nil
}

var _ ports.Random = (*Fake)(nil)
