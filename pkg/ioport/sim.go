package ioport

import "sync"

// SimPort is an in-memory Port implementation recording register state.
// Edge interrupts are dispatched synchronously from the goroutine that
// changed the input, which models interrupt context for tests and the
// matrix simulator.
type SimPort struct {
	mu       sync.Mutex
	out      uint8
	dirOut   uint8
	in       uint8
	pins     [PortSize]PinConfig
	intMask  uint8
	priority IntPriority
	intFlags uint8
	handler  func()

	// onOutput is invoked (outside the port lock) after any output
	// register change so the owning simulation can recompute inputs.
	onOutput func()
}

func (p *SimPort) SetOutput(mask uint8) {
	p.mu.Lock()
	p.out |= mask
	hook := p.onOutput
	p.mu.Unlock()
	if hook != nil && mask != 0 {
		hook()
	}
}

func (p *SimPort) ClearOutput(mask uint8) {
	p.mu.Lock()
	p.out &^= mask
	hook := p.onOutput
	p.mu.Unlock()
	if hook != nil && mask != 0 {
		hook()
	}
}

func (p *SimPort) Output() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

func (p *SimPort) Input() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in
}

func (p *SimPort) SetDirOutput(mask uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirOut |= mask
}

func (p *SimPort) SetDirInput(mask uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirOut &^= mask
}

// DirOutput returns the direction register (1 = output).
func (p *SimPort) DirOutput() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirOut
}

func (p *SimPort) ConfigurePins(mask uint8, cfg PinConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for bit := 0; bit < PortSize; bit++ {
		if mask&(1<<uint(bit)) != 0 {
			p.pins[bit] = cfg
		}
	}
}

// PinConfigAt returns the configuration applied to a pin.
func (p *SimPort) PinConfigAt(bit int) PinConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[bit]
}

func (p *SimPort) SetInterruptMask(mask uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intMask = mask
}

// InterruptMask returns the pin mask participating in the port interrupt.
func (p *SimPort) InterruptMask() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intMask
}

func (p *SimPort) EnableInterrupt(priority IntPriority) {
	p.mu.Lock()
	p.priority = priority
	fire := priority != PriorityOff && p.intFlags&p.intMask != 0
	handler := p.handler
	p.mu.Unlock()

	// A pending, unmasked edge fires as soon as the interrupt is armed.
	if fire && handler != nil {
		handler()
	}
}

func (p *SimPort) DisableInterrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority = PriorityOff
}

// InterruptPriority returns the current port interrupt priority.
func (p *SimPort) InterruptPriority() IntPriority {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priority
}

func (p *SimPort) ClearInterruptFlags() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intFlags = 0
}

// PendingFlags returns the raw pending edge flags.
func (p *SimPort) PendingFlags() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intFlags
}

func (p *SimPort) SetInterruptHandler(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = fn
}

// setInput replaces the input register, latching edge flags for pins whose
// sense configuration watches edges and dispatching the port interrupt if
// it is armed.
func (p *SimPort) setInput(value uint8) {
	p.mu.Lock()
	changed := p.in ^ value
	p.in = value

	var edges uint8
	for bit := 0; bit < PortSize; bit++ {
		m := uint8(1) << uint(bit)
		if changed&m != 0 && p.pins[bit].Sense == SenseBothEdges {
			edges |= m
		}
	}
	edges &= p.intMask
	p.intFlags |= edges

	fire := edges != 0 && p.priority != PriorityOff
	handler := p.handler
	p.mu.Unlock()

	if fire && handler != nil {
		handler()
	}
}

// SimBank is a Bank of SimPorts.
type SimBank struct {
	ports [PortCount]*SimPort
}

// NewSimBank creates a bank with every port idle.
func NewSimBank() *SimBank {
	b := &SimBank{}
	for i := range b.ports {
		b.ports[i] = &SimPort{}
	}
	return b
}

func (b *SimBank) Port(n int) Port {
	return b.ports[n]
}

// Sim returns the concrete SimPort for register-level assertions.
func (b *SimBank) Sim(n int) *SimPort {
	return b.ports[n]
}

// WiringConfig describes the simulated matrix wiring.
type WiringConfig struct {
	// RowPins and ColPins assign logical rows/columns to physical pins.
	RowPins []PinAddr
	ColPins []PinAddr

	// HasRows is false for the direct-wired (single virtual row) modes,
	// where a pressed switch drives its column unconditionally.
	HasRows bool

	// RowSelectHigh is the output level that connects a row line.
	RowSelectHigh bool
}

// MatrixSim models the switch matrix electrically: a pressed switch
// connects its row line to its column line, and a column whose row is
// driven to the select level reads active (1) on the input register.
type MatrixSim struct {
	mu      sync.Mutex
	bank    *SimBank
	cfg     WiringConfig
	pressed map[[2]int]bool
}

// NewMatrixSim wires a simulation onto the bank. Any later output change
// on any port recomputes the column inputs.
func NewMatrixSim(bank *SimBank, cfg WiringConfig) *MatrixSim {
	m := &MatrixSim{
		bank:    bank,
		cfg:     cfg,
		pressed: make(map[[2]int]bool),
	}
	for _, p := range bank.ports {
		p.mu.Lock()
		p.onOutput = m.refresh
		p.mu.Unlock()
	}
	m.refresh()
	return m
}

// Press closes the switch at (row, col).
func (m *MatrixSim) Press(row, col int) {
	m.mu.Lock()
	m.pressed[[2]int{row, col}] = true
	m.mu.Unlock()
	m.refresh()
}

// Release opens the switch at (row, col).
func (m *MatrixSim) Release(row, col int) {
	m.mu.Lock()
	delete(m.pressed, [2]int{row, col})
	m.mu.Unlock()
	m.refresh()
}

// Pressed reports whether the switch at (row, col) is closed.
func (m *MatrixSim) Pressed(row, col int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressed[[2]int{row, col}]
}

// refresh recomputes every port's column input bits from the pressed
// switches and the current row drive state.
func (m *MatrixSim) refresh() {
	m.mu.Lock()
	var next [PortCount]uint8
	for key := range m.pressed {
		row, col := key[0], key[1]
		if col < 0 || col >= len(m.cfg.ColPins) {
			continue
		}
		if m.cfg.HasRows {
			if row < 0 || row >= len(m.cfg.RowPins) {
				continue
			}
			if !m.rowConnected(m.cfg.RowPins[row]) {
				continue
			}
		}
		cp := m.cfg.ColPins[col]
		if cp.Valid() {
			next[cp.Port] |= cp.Mask()
		}
	}
	m.mu.Unlock()

	for i, p := range m.bank.ports {
		p.setInput(next[i])
	}
}

// rowConnected reports whether a row line is currently driven to the
// select level by an output pin.
func (m *MatrixSim) rowConnected(rp PinAddr) bool {
	if !rp.Valid() {
		return false
	}
	p := m.bank.ports[rp.Port]
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirOut&rp.Mask() == 0 {
		return false
	}
	high := p.out&rp.Mask() != 0
	return high == m.cfg.RowSelectHigh
}
