package refdata

import (
	"context"
	"strings"
	"sync"
)

// MemoryProvider keeps reference data in memory and is safe for concurrent
// use. It backs tests and database-less development setups.
type MemoryProvider struct {
	mu        sync.RWMutex
	suppliers map[string]Supplier
}

// NewMemoryProvider constructs an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{suppliers: make(map[string]Supplier)}
}

// Add registers a supplier under its reference number.
func (p *MemoryProvider) Add(s Supplier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppliers[strings.ToUpper(strings.TrimSpace(s.ReferenceNumber))] = s
}

// ValidReferences returns all registered reference numbers.
func (p *MemoryProvider) ValidReferences(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	refs := make([]string, 0, len(p.suppliers))
	for ref := range p.suppliers {
		refs = append(refs, ref)
	}
	return refs, nil
}

// Lookup resolves a reference number, case-insensitively.
func (p *MemoryProvider) Lookup(ctx context.Context, referenceNumber string) (Supplier, bool, error) {
	if err := ctx.Err(); err != nil {
		return Supplier{}, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.suppliers[strings.ToUpper(strings.TrimSpace(referenceNumber))]
	return s, ok, nil
}

var _ Provider = (*MemoryProvider)(nil)
