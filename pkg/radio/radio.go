// Package radio provides the raw transport primitives for the nRF24
// wireless link: a byte-exchange SPI primitive plus chip-enable and IRQ
// pin control. It carries no scanning logic and no packet framing; packet
// handling lives with the consumer.
package radio

import (
	"errors"

	"keyplus-go-migration/pkg/faults"
	"keyplus-go-migration/pkg/ioport"
)

// MaxSPISpeedHz is the highest SPI clock the nRF24L01+ accepts.
const MaxSPISpeedHz = 10_000_000

// Common errors
var (
	ErrUnsupported = errors.New("radio: spidev not supported on this platform")
	ErrClosed      = errors.New("radio: transport closed")
)

// Transport is the raw byte-exchange primitive of the wireless link.
type Transport interface {
	// Exchange shifts one byte out and returns the byte shifted in.
	Exchange(tx byte) (byte, error)

	// ExchangeMulti shifts len(tx) bytes out while filling rx (which must
	// be the same length) in a single chip-select assertion.
	ExchangeMulti(tx, rx []byte) error

	Close() error
}

// Pins owns the radio's chip-enable output and IRQ input, claimed through
// the pin arbiter like every other peripheral pin.
type Pins struct {
	bank ioport.Bank
	ce   ioport.PinAddr
	irq  ioport.PinAddr
}

// ClaimPins claims the CE and IRQ pins and programs them. A denied claim
// registers RadioInitFailed and returns the conflict error.
func ClaimPins(bank ioport.Bank, arbiter ioport.Arbiter, reg *faults.Register, ce, irq ioport.PinAddr) (*Pins, error) {
	if !ce.Valid() || !irq.Valid() {
		reg.RegisterWith(faults.RadioInitFailed, "invalid radio pin assignment")
		return nil, errors.New("radio: invalid pin assignment")
	}

	if err := arbiter.Claim(ce.Port, ce.Mask()); err != nil {
		reg.RegisterWith(faults.RadioInitFailed, "ce pin "+ce.String())
		return nil, err
	}
	if err := arbiter.Claim(irq.Port, irq.Mask()); err != nil {
		reg.RegisterWith(faults.RadioInitFailed, "irq pin "+irq.String())
		return nil, err
	}

	p := &Pins{bank: bank, ce: ce, irq: irq}

	cePort := bank.Port(ce.Port)
	cePort.SetDirOutput(ce.Mask())
	cePort.ClearOutput(ce.Mask())

	irqPort := bank.Port(irq.Port)
	irqPort.SetDirInput(irq.Mask())
	irqPort.ConfigurePins(irq.Mask(), ioport.PinConfig{
		Pull:  ioport.PullUp,
		Sense: ioport.SenseBothEdges,
	})

	return p, nil
}

// SetChipEnable drives the CE pin.
func (p *Pins) SetChipEnable(on bool) {
	port := p.bank.Port(p.ce.Port)
	if on {
		port.SetOutput(p.ce.Mask())
	} else {
		port.ClearOutput(p.ce.Mask())
	}
}

// ArmIRQ registers the IRQ-edge handler and unmasks the interrupt. The
// handler runs in interrupt context and must be minimal.
func (p *Pins) ArmIRQ(fn func()) {
	port := p.bank.Port(p.irq.Port)
	port.SetInterruptMask(p.irq.Mask())
	port.SetInterruptHandler(fn)
	port.ClearInterruptFlags()
	port.EnableInterrupt(ioport.PriorityLow)
}

// DisarmIRQ masks the IRQ interrupt.
func (p *Pins) DisarmIRQ() {
	p.bank.Port(p.irq.Port).DisableInterrupt()
}

// Config holds spidev transport configuration.
type Config struct {
	// Device is the spidev path, e.g. /dev/spidev0.0.
	Device string

	// SpeedHz is the SPI clock. Zero selects 4 MHz; values above
	// MaxSPISpeedHz are capped.
	SpeedHz uint32
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Device:  "/dev/spidev0.0",
		SpeedHz: 4_000_000,
	}
}
