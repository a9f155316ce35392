package profile

import (
	"context"
	"sync"
)

// Cache is a process scoped read-through cache over a Directory, keyed by uid.
// Construct one per process (or per test); there is no package level instance.
type Cache struct {
	dir     Directory
	mu      sync.RWMutex
	entries map[string]Profile
}

func NewCache(dir Directory) *Cache {
	return &Cache{dir: dir, entries: make(map[string]Profile)}
}

func (c *Cache) Get(ctx context.Context, uid string) (*Profile, error) {
	c.mu.RLock()
	p, ok := c.entries[uid]
	c.mu.RUnlock()
	if ok {
		return &p, nil
	}

	loaded, err := c.dir.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[uid] = *loaded
	c.mu.Unlock()
	return loaded, nil
}

// GetMany returns the profiles it could resolve; unknown uids are simply absent.
func (c *Cache) GetMany(ctx context.Context, uids []string) (map[string]Profile, error) {
	result := make(map[string]Profile, len(uids))
	var missing []string

	c.mu.RLock()
	for _, uid := range uids {
		if p, ok := c.entries[uid]; ok {
			result[uid] = p
		} else {
			missing = append(missing, uid)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := c.dir.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for uid, p := range loaded {
		c.entries[uid] = p
		result[uid] = p
	}
	c.mu.Unlock()
	return result, nil
}

// LinkTherapist writes through to the directory and drops the cached patient entry.
func (c *Cache) LinkTherapist(ctx context.Context, patientUID, therapistUID string) error {
	if err := c.dir.LinkTherapist(ctx, patientUID, therapistUID); err != nil {
		return err
	}
	c.Invalidate(patientUID)
	return nil
}

func (c *Cache) Invalidate(uid string) {
	c.mu.Lock()
	delete(c.entries, uid)
	c.mu.Unlock()
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]Profile)
	c.mu.Unlock()
}
