package payments

import (
	"sync"

	"github.com/google/uuid"
)

// orderLocks serializes settlement attempts per order within this process.
// The order-status CAS on the row is the cross-process backstop.
type orderLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (o *orderLocks) lock(orderID uuid.UUID) func() {
	o.mu.Lock()
	m, ok := o.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		o.locks[orderID] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}
