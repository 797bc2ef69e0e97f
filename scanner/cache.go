package scanner

import "sync"

// maxRemembered bounds the size of the reminded-event cache. Once the cache
// grows past this, it is cleared wholesale; the ledger query still prevents
// duplicate sends for any event the cache forgets.
const maxRemembered = 100

// remindedCache remembers which events this process has already reminded. It
// is a best-effort duplicate-suppression layer scoped to the process lifetime
// and is never authoritative.
type remindedCache struct {
	mutex    sync.Mutex
	eventIDs map[string]struct{}
}

func newRemindedCache() *remindedCache {
	return &remindedCache{eventIDs: make(map[string]struct{})}
}

func (c *remindedCache) contains(eventID string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.eventIDs[eventID]
	return ok
}

func (c *remindedCache) add(eventID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.eventIDs[eventID] = struct{}{}
}

// prune clears the cache when it grows too large.
func (c *remindedCache) prune() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.eventIDs) > maxRemembered {
		c.eventIDs = make(map[string]struct{})
	}
}
