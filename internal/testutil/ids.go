package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator hands out ids with a fixed prefix and an incrementing
// counter ("id-0001", "id-0002", ...).
//
// Unlike domain.UUIDv7Generator, the sequence restarts with each generator,
// so reruns of the same scenario produce identical ids.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix. An empty
// prefix defaults to "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// NewID returns the next id in the sequence.
//
// Implements domain.IDGenerator.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
