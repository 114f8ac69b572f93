package scanner

import (
	"errors"
	"sync/atomic"
	"time"

	"keyplus-go-migration/pkg/faults"
	"keyplus-go-migration/pkg/ioport"
)

// Common errors
var (
	ErrConfigTooLarge  = errors.New("scanner: matrix configuration exceeds static bounds")
	ErrUnsupportedMode = errors.New("scanner: unsupported scan mode")
	ErrPinLayout       = errors.New("scanner: pin layout does not cover the scan plan")
	ErrMissingDep      = errors.New("scanner: missing collaborator")
)

// Debouncer is the consumed debounce collaborator. DebounceRow receives
// the raw per-row column sample and reports whether any key's stable state
// changed; ActiveCount reports how many keys are currently mid-debounce.
type Debouncer interface {
	DebounceRow(row int, sample []byte) bool
	ActiveCount() int
}

// DelayFunc waits for the given number of calibrated delay units. It is
// injectable so tests and the simulator do not busy-wait.
type DelayFunc func(units uint8)

func defaultDelay(units uint8) {
	if units > 0 {
		time.Sleep(time.Duration(units) * time.Microsecond)
	}
}

// Config holds the collaborators and board geometry for a Matrix.
type Config struct {
	Bank      ioport.Bank
	Arbiter   ioport.Arbiter
	Debouncer Debouncer
	Faults    *faults.Register

	// RowPins and ColPins assign logical row/column indices to physical
	// pins. RowPins is unused for the direct-wired modes.
	RowPins []ioport.PinAddr
	ColPins []ioport.PinAddr

	// SlowClock indicates the system runs at the reduced power-saving
	// clock; discharge delays are rescaled from the 16 MHz reference to
	// SlowClockHz once at Init.
	SlowClock   bool
	SlowClockHz uint32

	// Delay overrides the settle wait implementation.
	Delay DelayFunc
}

// Matrix owns all scan state for one switch matrix. It is constructed at
// boot and passed to every caller; there is no package-level mutable
// state. Scan, EnableWake and DisableWake must not be invoked concurrently
// with each other; the wake-trigger flag is the only value shared with
// interrupt context.
type Matrix struct {
	cfg      Config
	plan     ScanPlan
	strategy modeStrategy
	delays   clockDelays

	ready       bool
	bytesPerRow int

	// Per-port column masks and per-row bindings, written once during
	// Init and read-only afterwards. A zero column mask means the port
	// contributes no columns; a nil row port means the row failed to
	// claim and is permanently skipped this boot.
	colMasks     [ioport.PortCount]uint8
	rowPorts     [MaxRows]ioport.Port
	rowMasks     [MaxRows]uint8
	rowPortMasks [ioport.PortCount]uint8

	sampleBuf []byte

	// wakeTriggered is set from interrupt context and read/cleared from
	// the foreground. Multiple edges before a foreground poll coalesce
	// into one observed trigger.
	wakeTriggered atomic.Bool
}

// New creates a Matrix with the given collaborators. Init must be called
// before any other operation.
func New(cfg Config) *Matrix {
	if cfg.Delay == nil {
		cfg.Delay = defaultDelay
	}
	return &Matrix{cfg: cfg}
}

// Init validates the scan plan, claims the configured pins through the
// arbiter and programs their electrical configuration for the plan's
// wiring mode. Pin-claim conflicts are registered as faults and the
// affected rows/ports are excluded, but Init still succeeds: the matrix
// runs degraded with the remaining pins. A plan that exceeds the static
// bounds is zeroed and every later operation becomes a no-op.
func (m *Matrix) Init(plan ScanPlan) error {
	if m.cfg.Bank == nil || m.cfg.Arbiter == nil || m.cfg.Debouncer == nil || m.cfg.Faults == nil {
		return ErrMissingDep
	}

	if (plan.hasRowDimension() && plan.Rows > MaxRows) || plan.MaxColPinIndex > MaxPinIndex {
		m.plan = ScanPlan{}
		m.ready = false
		m.cfg.Faults.Register(faults.ConfigTooLarge)
		return ErrConfigTooLarge
	}

	strategy, ok := strategyFor(plan.Mode)
	if !ok {
		m.plan = ScanPlan{}
		m.ready = false
		m.cfg.Faults.Register(faults.UnsupportedScanMode)
		return ErrUnsupportedMode
	}

	if err := m.checkLayout(plan); err != nil {
		m.plan = ScanPlan{}
		m.ready = false
		return err
	}

	m.plan = plan
	m.strategy = strategy
	m.bytesPerRow = (int(plan.MaxColPinIndex) + ioport.PortSize) / ioport.PortSize
	m.sampleBuf = make([]byte, m.bytesPerRow)

	if strategy.hasRows {
		m.setupRows()
	}
	m.setupColumns()

	// Initial state: wake interrupts off, all rows disconnected.
	m.ready = true
	m.disableWakeIRQ()
	m.unselectAllRows()

	// Calibrated once; the settle time a delay unit represents stays
	// invariant across clock regimes.
	m.delays = calibrateDelays(plan, m.cfg.SlowClock, m.cfg.SlowClockHz)

	return nil
}

// checkLayout verifies the pin lists cover the plan's geometry.
func (m *Matrix) checkLayout(plan ScanPlan) error {
	if plan.hasRowDimension() && len(m.cfg.RowPins) < int(plan.Rows) {
		return ErrPinLayout
	}
	if len(m.cfg.ColPins) < int(plan.Cols) {
		return ErrPinLayout
	}
	for _, cp := range m.cfg.ColPins[:plan.Cols] {
		if !cp.Valid() || cp.Index() > int(plan.MaxColPinIndex) {
			return ErrPinLayout
		}
	}
	return nil
}

// setupRows claims each row pin and programs it as an output with the
// mode's drive convention and edge interrupts off. A claim conflict
// registers a fault and excludes that row; remaining rows still configure,
// so every conflicting pin in a boot is surfaced.
func (m *Matrix) setupRows() {
	rowCfg := ioport.PinConfig{
		Drive:  m.strategy.rowDrive,
		Invert: m.strategy.rowInvert,
		Sense:  ioport.SenseNone,
	}

	for i := 0; i < int(m.plan.Rows); i++ {
		rp := m.cfg.RowPins[i]
		if !rp.Valid() {
			m.cfg.Faults.RegisterWith(faults.PinMappingConflict, "row "+rp.String())
			continue
		}
		if err := m.cfg.Arbiter.Claim(rp.Port, rp.Mask()); err != nil {
			m.cfg.Faults.RegisterWith(faults.PinMappingConflict, "row "+rp.String())
			continue
		}

		port := m.cfg.Bank.Port(rp.Port)
		m.rowPorts[i] = port
		m.rowMasks[i] = rp.Mask()
		m.rowPortMasks[rp.Port] |= rp.Mask()

		port.SetDirOutput(rp.Mask())
		m.writeRowLevel(port, rp.Mask(), !m.strategy.rowSelectHigh)
		port.ConfigurePins(rp.Mask(), rowCfg)
	}
}

// setupColumns groups column pins by port, claims each port's aggregate
// mask and programs the mode's pull/invert/edge configuration with the
// port interrupt left masked. A failed claim zeroes that port's mask: the
// port contributes no columns to sampling or wake.
func (m *Matrix) setupColumns() {
	colCfg := ioport.PinConfig{
		Pull:   m.strategy.colPull,
		Invert: m.strategy.colInvert,
		Sense:  ioport.SenseBothEdges,
	}

	var byPort [ioport.PortCount]uint8
	for _, cp := range m.cfg.ColPins[:m.plan.Cols] {
		byPort[cp.Port] |= cp.Mask()
	}

	for portNum := 0; portNum < m.bytesPerRow; portNum++ {
		mask := byPort[portNum]
		if mask == 0 {
			continue
		}
		if err := m.cfg.Arbiter.Claim(portNum, mask); err != nil {
			m.cfg.Faults.RegisterWith(faults.PinMappingConflict,
				"columns on port "+ioport.PortName(portNum))
			continue
		}

		port := m.cfg.Bank.Port(portNum)
		m.colMasks[portNum] = mask

		port.SetDirInput(mask)
		port.ConfigurePins(mask, colCfg)
		port.SetInterruptMask(mask)
		port.SetInterruptHandler(m.wakeISR(port))
		port.DisableInterrupt()
	}
}

// writeRowLevel drives the masked row pins to the given output level.
func (m *Matrix) writeRowLevel(port ioport.Port, mask uint8, high bool) {
	if high {
		port.SetOutput(mask)
	} else {
		port.ClearOutput(mask)
	}
}

// Plan returns the active scan plan (zeroed if Init rejected it).
func (m *Matrix) Plan() ScanPlan {
	return m.plan
}

// Ready reports whether Init accepted a plan.
func (m *Matrix) Ready() bool {
	return m.ready
}

// BytesPerRow returns the number of ports a row sample spans.
func (m *Matrix) BytesPerRow() int {
	return m.bytesPerRow
}

// ColumnMask returns the bitmask of claimed column pins on a port. A zero
// mask means the port contributes no columns.
func (m *Matrix) ColumnMask(port int) uint8 {
	if port < 0 || port >= ioport.PortCount {
		return 0
	}
	return m.colMasks[port]
}

// Delays returns the calibrated idle and debouncing settle delays.
func (m *Matrix) Delays() (idle, debouncing uint8) {
	return m.delays.idle, m.delays.debouncing
}
