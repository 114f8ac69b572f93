// Package scanner implements the real-time input-acquisition core of the
// keyboard firmware: it drives the switch matrix, samples it on a
// schedule, feeds raw samples to the debounce collaborator and supports an
// interrupt-driven wake-on-keypress mode.
package scanner

import "keyplus-go-migration/pkg/ioport"

const (
	// MaxRows is the largest discrete row dimension a scan plan may
	// declare.
	MaxRows = 10

	// MaxPinIndex is the largest flat column pin index.
	MaxPinIndex = ioport.PortCount*ioport.PortSize - 1
)

// ScanMode selects one of the four supported wiring topologies.
type ScanMode uint8

const (
	// ModeRowCol scans a diode matrix with diodes facing row to column.
	ModeRowCol ScanMode = iota

	// ModeColRow scans a diode matrix with diodes facing column to row.
	ModeColRow

	// ModePinVCC reads direct-wired switches connecting pins to VCC.
	ModePinVCC

	// ModePinGND reads direct-wired switches connecting pins to GND.
	ModePinGND
)

func (m ScanMode) String() string {
	switch m {
	case ModeRowCol:
		return "row_col"
	case ModeColRow:
		return "col_row"
	case ModePinVCC:
		return "pin_vcc"
	case ModePinGND:
		return "pin_gnd"
	default:
		return "unknown"
	}
}

// ScanPlan is the boot-time matrix configuration. It is constructed once
// from board configuration; a plan that violates the static bounds is
// zeroed at Init and scanning becomes a permanent no-op for that boot.
type ScanPlan struct {
	// Rows and Cols are the logical matrix dimensions. Rows is ignored
	// for the direct-wired modes, which have a single virtual row.
	Rows uint8
	Cols uint8

	// Mode is the wiring topology.
	Mode ScanMode

	// MaxColPinIndex is the highest flat pin index used by any column.
	// It determines how many ports a row sample spans.
	MaxColPinIndex uint8

	// DischargeDelayIdle and DischargeDelayDebouncing are parasitic
	// discharge delays in units calibrated against the reference clock.
	DischargeDelayIdle       uint8
	DischargeDelayDebouncing uint8
}

// hasRowDimension reports whether the plan's mode scans a discrete row
// dimension.
func (p ScanPlan) hasRowDimension() bool {
	return p.Mode == ModeRowCol || p.Mode == ModeColRow
}

// modeStrategy fixes, once per boot, the electrical conventions of a scan
// mode: how row outputs connect/disconnect, how column inputs are pulled
// and sensed, and whether a discrete row dimension exists at all.
type modeStrategy struct {
	hasRows bool

	// rowSelectHigh is the output level that connects a row line.
	// Wired-or rows (inverted drivers) connect low; wired-and rows
	// connect high.
	rowSelectHigh bool
	rowDrive      ioport.Drive
	rowInvert     bool

	colPull   ioport.Pull
	colInvert bool
}

// strategyFor returns the strategy of a scan mode, or ok=false for an
// unrecognized mode value.
func strategyFor(mode ScanMode) (modeStrategy, bool) {
	switch mode {
	case ModeRowCol:
		// Diodes face row to column. Rows drive inverted wired-or
		// outputs, columns idle low on pull-downs.
		return modeStrategy{
			hasRows:       true,
			rowSelectHigh: false,
			rowDrive:      ioport.DriveWiredOR,
			rowInvert:     true,
			colPull:       ioport.PullDown,
			colInvert:     false,
		}, true
	case ModeColRow:
		// Diodes face column to row. Rows drive wired-and outputs,
		// columns idle high on pull-ups and read inverted.
		return modeStrategy{
			hasRows:       true,
			rowSelectHigh: true,
			rowDrive:      ioport.DriveWiredAND,
			rowInvert:     false,
			colPull:       ioport.PullUp,
			colInvert:     true,
		}, true
	case ModePinVCC:
		// Switches connect pins to VCC; no row dimension.
		return modeStrategy{
			colPull:   ioport.PullDown,
			colInvert: false,
		}, true
	case ModePinGND:
		// Switches connect pins to GND; no row dimension.
		return modeStrategy{
			colPull:   ioport.PullUp,
			colInvert: true,
		}, true
	default:
		return modeStrategy{}, false
	}
}
