package cards

import "sync"

// cardLocks serializes balance mutations per card UID within this process.
// The lock is held across the whole unit of work including the transaction
// commit, so the next holder reads the committed balance. The optimistic
// version CAS on the row is the cross-process backstop.
type cardLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCardLocks() *cardLocks {
	return &cardLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *cardLocks) lock(uid string) func() {
	c.mu.Lock()
	m, ok := c.locks[uid]
	if !ok {
		m = &sync.Mutex{}
		c.locks[uid] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
