package catalog

import (
	"context"
	"sync"

	corecatalog "github.com/pierreba/era/core/catalog"
	"github.com/pierreba/era/core/model"
)

// MemoryCatalog is an in-memory catalog implementation used by tests and
// single-process deployments.
type MemoryCatalog struct {
	mu        sync.RWMutex
	resources map[string]model.ResourceCandidate
	order     []string
}

// NewMemoryCatalog creates a catalog pre-filled with the given resources.
func NewMemoryCatalog(resources ...model.ResourceCandidate) *MemoryCatalog {
	c := &MemoryCatalog{resources: make(map[string]model.ResourceCandidate, len(resources))}
	for _, r := range resources {
		c.upsertLocked(r)
	}
	return c
}

// Upsert adds or replaces a resource.
func (c *MemoryCatalog) Upsert(r model.ResourceCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(r)
}

func (c *MemoryCatalog) upsertLocked(r model.ResourceCandidate) {
	if _, known := c.resources[r.ID]; !known {
		c.order = append(c.order, r.ID)
	}
	c.resources[r.ID] = r
}

// Query returns a snapshot of matching resources, bounded by the explicit
// MaxResults. Insertion order is preserved.
func (c *MemoryCatalog) Query(ctx context.Context, req corecatalog.QueryRequest) ([]model.ResourceCandidate, error) {
	if req.MaxResults <= 0 {
		return nil, corecatalog.ErrMaxResultsRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []model.ResourceCandidate
	for _, id := range c.order {
		r := c.resources[id]
		if !corecatalog.Matches(r, req) {
			continue
		}
		out = append(out, r)
		if len(out) == req.MaxResults {
			break
		}
	}
	return out, nil
}

// MarkUnavailable transitions committed resources out of the candidate pool.
func (c *MemoryCatalog) MarkUnavailable(ctx context.Context, resourceIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range resourceIDs {
		if r, ok := c.resources[id]; ok {
			r.Status = model.StatusDeployed
			c.resources[id] = r
		}
	}
	return nil
}

// Get returns the current state of a resource.
func (c *MemoryCatalog) Get(id string) (model.ResourceCandidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[id]
	return r, ok
}
