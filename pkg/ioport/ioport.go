// Package ioport abstracts the per-port GPIO hardware the matrix scanner
// drives: output levels, input snapshots, pin electrical configuration and
// port-level edge interrupts. Scan and wake logic is written only against
// these interfaces, so a simulated bank can stand in for real hardware.
package ioport

import (
	"errors"
	"fmt"
)

const (
	// PortCount is the number of physical I/O ports (A..E plus R on the
	// reference hardware).
	PortCount = 6

	// PortSize is the number of pins per port.
	PortSize = 8
)

var portNames = [PortCount]string{"A", "B", "C", "D", "E", "R"}

// PortName returns the letter name of a port index.
func PortName(n int) string {
	if n < 0 || n >= PortCount {
		return "?"
	}
	return portNames[n]
}

// Pull selects the input pull resistor for a pin.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Drive selects the output driver topology for a pin. The wired-or and
// wired-and emulations let multiple drivers share a line: one output level
// connects the pin, the other disconnects it.
type Drive int

const (
	DriveTotem Drive = iota
	DriveWiredOR
	DriveWiredAND
)

// Sense selects which input edges raise the port interrupt flag.
type Sense int

const (
	SenseNone Sense = iota
	SenseBothEdges
)

// IntPriority is the port interrupt priority level. PriorityOff masks the
// interrupt entirely.
type IntPriority int

const (
	PriorityOff IntPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// PinConfig is the electrical/interrupt configuration applied to a pin.
type PinConfig struct {
	Pull   Pull
	Invert bool
	Drive  Drive
	Sense  Sense
}

// Port is the control surface of one physical I/O port. Implementations
// must tolerate calls with a zero mask (no-ops).
type Port interface {
	// SetOutput sets the masked bits of the output register.
	SetOutput(mask uint8)
	// ClearOutput clears the masked bits of the output register.
	ClearOutput(mask uint8)
	// Output returns the current output register value.
	Output() uint8
	// Input returns a snapshot of the input register. Inverted pins read
	// their inverted level, so an "active" column reads 1 regardless of
	// the pull convention.
	Input() uint8

	// SetDirOutput and SetDirInput set the masked pins' direction.
	SetDirOutput(mask uint8)
	SetDirInput(mask uint8)

	// ConfigurePins applies cfg to every masked pin.
	ConfigurePins(mask uint8, cfg PinConfig)

	// SetInterruptMask selects which pins participate in the port
	// interrupt. The port-level interrupt is still gated by
	// EnableInterrupt/DisableInterrupt.
	SetInterruptMask(mask uint8)
	// EnableInterrupt unmasks the port interrupt at the given priority.
	EnableInterrupt(priority IntPriority)
	// DisableInterrupt masks the port interrupt.
	DisableInterrupt()
	// ClearInterruptFlags clears any pending edge flags.
	ClearInterruptFlags()
	// SetInterruptHandler registers the handler dispatched when an
	// unmasked edge fires. The handler runs in interrupt context: it must
	// be minimal and non-blocking.
	SetInterruptHandler(fn func())
}

// Bank is a fixed set of PortCount ports.
type Bank interface {
	Port(n int) Port
}

// PinAddr addresses a single pin as (port, bit).
type PinAddr struct {
	Port int
	Bit  int
}

// Mask returns the single-bit mask of the pin within its port.
func (p PinAddr) Mask() uint8 {
	return 1 << uint(p.Bit)
}

// Index returns the flat pin index (port*PortSize + bit).
func (p PinAddr) Index() int {
	return p.Port*PortSize + p.Bit
}

// PinFromIndex converts a flat pin index back to a PinAddr.
func PinFromIndex(i int) PinAddr {
	return PinAddr{Port: i / PortSize, Bit: i % PortSize}
}

// Valid reports whether the pin addresses a real port and bit.
func (p PinAddr) Valid() bool {
	return p.Port >= 0 && p.Port < PortCount && p.Bit >= 0 && p.Bit < PortSize
}

func (p PinAddr) String() string {
	return fmt.Sprintf("%s%d", PortName(p.Port), p.Bit)
}

// ErrPinConflict is returned by an Arbiter when a requested pin is already
// owned by another peripheral.
var ErrPinConflict = errors.New("ioport: pin already claimed")

// Arbiter grants exclusive ownership of physical pins. A failed claim
// leaves previously granted claims in place.
type Arbiter interface {
	// Claim reserves the masked pins of the port. It fails with
	// ErrPinConflict if any masked pin is already claimed.
	Claim(port int, mask uint8) error
}
