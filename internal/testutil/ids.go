package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates run IDs in sequence: "run-0001", "run-0002", ...
//
// This enables deterministic run results and golden snapshot comparison.
// Passing Next as the runner's ID source makes two runs of the same scenarios
// produce identical reports.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "run".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next ID.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
