package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids and reuses released slots.
type IdentifierPool struct {
	mu     sync.Mutex
	owners []interface{}
}

func NewIdentifierPool(capacity int) *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, capacity),
	}
}

// Aquire returns the lowest free id. Ids start at 1 so the zero value of a
// handle is never valid.
func (ip *IdentifierPool) Aquire(owner interface{}) uint32 {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	for i := range ip.owners {
		// Existing free spot. Take it.
		if ip.owners[i] == nil {
			ip.owners[i] = owner
			return uint32(i) + 1
		}
	}

	// If here, no existing free slots. Need a new id, so push one.
	ip.owners = append(ip.owners, owner)
	return uint32(len(ip.owners))
}

func (ip *IdentifierPool) Release(id uint32) error {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	if id == 0 || int(id) > len(ip.owners) {
		return fmt.Errorf("identifier release: id '%d' out of range (max=%d). Nothing was done", id, len(ip.owners))
	}

	// Just zero out the entry, making it available for use.
	ip.owners[id-1] = nil
	return nil
}

// Owner returns whatever was registered under id, or nil.
func (ip *IdentifierPool) Owner(id uint32) interface{} {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	if id == 0 || int(id) > len(ip.owners) {
		return nil
	}
	return ip.owners[id-1]
}
