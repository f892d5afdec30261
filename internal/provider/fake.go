package provider

import (
	"context"
	"fmt"
	"sync"

	"elites/internal/types"
)

// FakeOutput is one scripted provider result.
type FakeOutput struct {
	Raw map[string]any
	Err error
}

// Fake replays a script of outputs in order and records every request it
// received. Safe for use from a background job worker.
type Fake struct {
	mu      sync.Mutex
	outputs []FakeOutput
	Calls   []*types.ConversationRequest
}

func NewFake(outputs ...FakeOutput) *Fake {
	return &Fake{outputs: outputs}
}

// Enqueue appends further scripted outputs.
func (f *Fake) Enqueue(outputs ...FakeOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, outputs...)
}

func (f *Fake) Generate(_ context.Context, req *types.ConversationRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if len(f.outputs) == 0 {
		return nil, fmt.Errorf("fake provider: script exhausted after %d calls", len(f.Calls))
	}
	next := f.outputs[0]
	f.outputs = f.outputs[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return next.Raw, nil
}
