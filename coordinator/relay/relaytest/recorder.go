// Package relaytest provides a recording Relayer for tests.
package relaytest

import (
	"context"
	"sync"
)

// Recorder records every Relay call and answers with Result.
type Recorder struct {
	mu     sync.Mutex
	calls  [][]string
	Result bool
}

func NewRecorder() *Recorder {
	return &Recorder{Result: true}
}

func (r *Recorder) Relay(_ context.Context, ids []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), ids...))
	return r.Result
}

// Calls returns the identifier sets received, in call order.
func (r *Recorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}
