package simplecms

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds one service per content kind so that composite content can
// resolve child items of other kinds.
type Registry struct {
	mu       sync.RWMutex
	services map[Kind]Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[Kind]Service)}
}

// Register adds svc under its kind, replacing any previous one.
func (r *Registry) Register(svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[svc.Kind()] = svc
}

// Service returns the service registered for kind.
func (r *Registry) Service(kind Kind) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentKind, kind)
	}
	return svc, nil
}

// Kinds lists the registered kinds in name order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.services))
	for k := range r.services {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
