package scanner

import "keyplus-go-migration/pkg/ioport"

// EnableWake arms wake-on-keypress: every claimed row is held selected so
// a press on any row pulls some column pin, then the port edge interrupt
// is unmasked at low priority on every port holding claimed columns. The
// idle settle delay runs before arming so a stale level does not fire a
// spurious interrupt, and already-pending hardware flags plus the sticky
// trigger flag are cleared first.
//
// While wake is armed the scanner must not be driven: EnableWake and Scan
// own the row-select state mutually exclusively.
func (m *Matrix) EnableWake() {
	if !m.ready {
		return
	}

	m.selectAllRows()
	m.cfg.Delay(m.delays.idle)

	for portNum := 0; portNum < ioport.PortCount; portNum++ {
		if m.colMasks[portNum] != 0 {
			m.cfg.Bank.Port(portNum).ClearInterruptFlags()
		}
	}
	m.wakeTriggered.Store(false)

	for portNum := 0; portNum < ioport.PortCount; portNum++ {
		if m.colMasks[portNum] != 0 {
			m.cfg.Bank.Port(portNum).EnableInterrupt(ioport.PriorityLow)
		}
	}
}

// DisableWake masks the column edge interrupts and then deselects all
// rows, in that order: the interrupt source must be silenced before the
// electrical state generating edges is removed, or a trailing edge races
// the mask operation. Calling it twice leaves the same state as once.
func (m *Matrix) DisableWake() {
	if !m.ready {
		return
	}
	m.disableWakeIRQ()
	m.unselectAllRows()
}

func (m *Matrix) disableWakeIRQ() {
	for portNum := 0; portNum < ioport.PortCount; portNum++ {
		if m.colMasks[portNum] != 0 {
			m.cfg.Bank.Port(portNum).DisableInterrupt()
		}
	}
}

// wakeISR returns the interrupt handler for one column port. It runs in
// interrupt context and only clears the port's pending flags and sets the
// sticky trigger; sampling, debouncing and row manipulation are deferred
// to the foreground.
func (m *Matrix) wakeISR(port ioport.Port) func() {
	return func() {
		port.ClearInterruptFlags()
		m.wakeTriggered.Store(true)
	}
}

// WakeTriggered reports whether a wake edge fired since the last
// ClearWake. Any number of bounced edges coalesce into one trigger.
func (m *Matrix) WakeTriggered() bool {
	return m.wakeTriggered.Load()
}

// ClearWake clears the sticky wake trigger. Foreground only.
func (m *Matrix) ClearWake() {
	m.wakeTriggered.Store(false)
}
