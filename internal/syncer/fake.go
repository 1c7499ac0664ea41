package syncer

import (
	"context"
	"sync"
)

// FakeClient records submitted requests for test assertions.
type FakeClient struct {
	mu sync.Mutex

	// Requests contains every submitted request in order.
	Requests []Request

	// SubmitError, if set, is returned by Submit.
	SubmitError error
}

// NewFakeClient creates a FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Submit records the request.
func (f *FakeClient) Submit(_ context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	return f.SubmitError
}

// Submitted returns a copy of the recorded requests.
func (f *FakeClient) Submitted() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.Requests))
	copy(out, f.Requests)
	return out
}

// Reset clears recorded requests and the scripted error.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = nil
	f.SubmitError = nil
}
