package store

import (
	"context"
	"sync"
	"time"
)

// MemoryDeliveryGuard is a process-local DeliveryGuard for running without
// Redis. Claims expire after ttl.
type MemoryDeliveryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	claimed map[string]time.Time
}

func NewMemoryDeliveryGuard(ttl time.Duration) *MemoryDeliveryGuard {
	return &MemoryDeliveryGuard{ttl: ttl, now: time.Now, claimed: make(map[string]time.Time)}
}

func (g *MemoryDeliveryGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if expires, ok := g.claimed[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.claimed[key] = now.Add(g.ttl)
	if len(g.claimed) > 10000 {
		for k, exp := range g.claimed {
			if !now.Before(exp) {
				delete(g.claimed, k)
			}
		}
	}
	return true, nil
}

func (g *MemoryDeliveryGuard) Close() error {
	return nil
}
