package protocol

import (
	"errors"
	"fmt"
	"sync"
)

// ErrProtocolNotFound is returned when a protocol id is not registered.
var ErrProtocolNotFound = errors.New("protocol not found")

// Registry holds the protocols available to a session, in registration order.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Protocol
	order []string
}

// NewRegistry returns a registry seeded with the built-in default protocol
// followed by protocols.
func NewRegistry(protocols ...*Protocol) *Registry {
	r := &Registry{byID: make(map[string]*Protocol)}
	r.Add(Default())
	for _, p := range protocols {
		r.Add(p)
	}
	return r
}

// Add registers p, replacing any protocol with the same id.
func (r *Registry) Add(p *Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Get returns the protocol registered under id.
func (r *Registry) Get(id string) (*Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProtocolNotFound, id)
	}
	return p, nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
