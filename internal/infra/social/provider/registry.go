package provider

import (
	"fmt"
	"sync"

	"github.com/vietddude/socialhub/internal/core/domain"
)

// Registry maps each platform to its client.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.Platform]Client
}

// NewRegistry creates a registry holding the given clients.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[domain.Platform]Client, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the client for its platform.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Platform()] = c
}

// Get returns the client for p.
func (r *Registry) Get(p domain.Platform) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: no client for %q", domain.ErrUnsupportedPlatform, p)
	}
	return c, nil
}

// All returns the registered clients in domain.Platforms order.
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Client, 0, len(r.clients))
	for _, p := range domain.Platforms {
		if c, ok := r.clients[p]; ok {
			out = append(out, c)
		}
	}
	return out
}
