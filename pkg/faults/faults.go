// Package faults provides the process-wide fault register for the
// keyboard firmware core. Boot-path setup code pushes faults here instead
// of returning errors, because nothing on the sequential boot path is
// positioned to recover inline; the surrounding firmware's fault policy
// decides whether to halt or continue degraded.
package faults

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies a category of fault.
type Kind int

const (
	// ConfigTooLarge means the declared matrix geometry exceeds the
	// static bounds. Fatal to the whole scan plan.
	ConfigTooLarge Kind = iota

	// UnsupportedScanMode means the scan plan names a wiring mode the
	// firmware does not implement. Fatal to the affected pin group.
	UnsupportedScanMode

	// PinMappingConflict means a pin claim was denied by the arbiter.
	// Registered once per conflicting claim.
	PinMappingConflict

	// RadioInitFailed means the radio transport could not be brought up.
	RadioInitFailed
)

func (k Kind) String() string {
	switch k {
	case ConfigTooLarge:
		return "config_too_large"
	case UnsupportedScanMode:
		return "unsupported_scan_mode"
	case PinMappingConflict:
		return "pin_mapping_conflict"
	case RadioInitFailed:
		return "radio_init_failed"
	default:
		return "unknown"
	}
}

// Fault is a single registered fault.
type Fault struct {
	Kind   Kind
	Detail string
	Time   time.Time
}

func (f Fault) String() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return f.Kind.String()
}

// Register collects faults for the lifetime of a boot. The zero value is
// not usable; construct with New.
type Register struct {
	mu      sync.Mutex
	faults  []Fault
	counts  map[Kind]int
	onFault []func(Fault)
}

// New creates an empty fault register.
func New() *Register {
	return &Register{
		counts: make(map[Kind]int),
	}
}

// Register records a fault with no detail text.
func (r *Register) Register(kind Kind) {
	r.RegisterWith(kind, "")
}

// RegisterWith records a fault with detail text.
func (r *Register) RegisterWith(kind Kind, detail string) {
	f := Fault{Kind: kind, Detail: detail, Time: time.Now()}

	r.mu.Lock()
	r.faults = append(r.faults, f)
	r.counts[kind]++
	callbacks := make([]func(Fault), len(r.onFault))
	copy(callbacks, r.onFault)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(f)
	}
}

// OnFault registers a callback invoked for every subsequent fault.
func (r *Register) OnFault(fn func(Fault)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFault = append(r.onFault, fn)
}

// Has reports whether at least one fault of the given kind is registered.
func (r *Register) Has(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind] > 0
}

// Count returns the number of registered faults of the given kind.
func (r *Register) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Len returns the total number of registered faults.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.faults)
}

// All returns a copy of every registered fault in registration order.
func (r *Register) All() []Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Fault, len(r.faults))
	copy(out, r.faults)
	return out
}

// Clear drops all registered faults. Intended for firmware restart paths
// and tests.
func (r *Register) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = nil
	r.counts = make(map[Kind]int)
}
