package mixnet

import (
	"context"
	"fmt"
	"sync"
)

// SharedClient wraps the mixnet client handle shared between the
// authenticator listener and the tunnel data-path processor, enforcing the
// strict exclusive take/put discipline §9 requires to avoid cyclic
// ownership: "listeners request the inner client, run, and deposit it back".
type SharedClient struct {
	mu     sync.Mutex
	client *innerClient // nil while taken out
}

// NewSharedClient connects (the placeholder) mixnet client and wraps it.
func NewSharedClient(ctx context.Context) (*SharedClient, error) {
	return &SharedClient{client: newInnerClient()}, nil
}

// Take exclusively removes the inner client for the duration of one
// listener's run, returning ErrTaken if it is already out.
func (s *SharedClient) Take() (*innerClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrTaken
	}
	c := s.client
	s.client = nil
	return c, nil
}

// Put returns the inner client after a listener run completes.
func (s *SharedClient) Put(c *innerClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = c
}

// Peek reports whether the client is currently available, without taking
// it — used by tests asserting §8 invariant 8 ("before and after, lock()
// sees Some").
func (s *SharedClient) Peek() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// NymAddress returns the client's mixnet address without taking it.
func (s *SharedClient) NymAddress() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return "", ErrTaken
	}
	return s.client.NymAddress(), nil
}

// Disconnect tears down the inner client; the shared handle must not be
// taken when this is called.
func (s *SharedClient) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return ErrTaken
	}
	s.client.Close()
	return nil
}

// ErrTaken is returned by any SharedClient operation attempted while the
// inner client is checked out by a listener.
var ErrTaken = fmt.Errorf("mixnet: client currently taken")
