package condense

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// --- Backend Mock ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	args := m.Called(ctx, model, prompt)
	return args.String(0), args.Error(1)
}

// countingBackend wraps a BackendFunc with a concurrency-safe call counter
// and a record of every prompt it saw.
type countingBackend struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	fn      func(call int, prompt string) (string, error)
}

func newCountingBackend(fn func(call int, prompt string) (string, error)) *countingBackend {
	return &countingBackend{fn: fn}
}

func (b *countingBackend) Generate(_ context.Context, _ string, prompt string) (string, error) {
	b.mu.Lock()
	call := b.calls
	b.calls++
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	return b.fn(call, prompt)
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// --- Ensure interface compliance ---
var (
	_ Backend = (*mockBackend)(nil)
	_ Backend = (*countingBackend)(nil)
)
