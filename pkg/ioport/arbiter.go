package ioport

import (
	"fmt"
	"sync"
)

// TableArbiter is an Arbiter backed by a per-port bitmask table. It is the
// process-wide pin-ownership record shared by every peripheral driver.
type TableArbiter struct {
	mu      sync.Mutex
	claimed [PortCount]uint8
}

// NewTableArbiter creates an arbiter with no pins claimed.
func NewTableArbiter() *TableArbiter {
	return &TableArbiter{}
}

// Claim reserves the masked pins of the port. The claim is all-or-nothing:
// on conflict no pin of the mask is reserved.
func (a *TableArbiter) Claim(port int, mask uint8) error {
	if port < 0 || port >= PortCount {
		return fmt.Errorf("ioport: claim on invalid port %d", port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.claimed[port]&mask != 0 {
		return fmt.Errorf("%w: port %s mask %#02x (held %#02x)",
			ErrPinConflict, PortName(port), mask, a.claimed[port]&mask)
	}
	a.claimed[port] |= mask
	return nil
}

// Claimed returns the claimed bitmask of a port.
func (a *TableArbiter) Claimed(port int) uint8 {
	if port < 0 || port >= PortCount {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimed[port]
}

// Reset releases every claim. There is no live reconfiguration path in the
// firmware; this exists for restart handling and tests.
func (a *TableArbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claimed = [PortCount]uint8{}
}
