package scanner

// Scan performs one full sweep of the matrix and reports whether any key's
// debounce-confirmed state changed. For the row/column modes each claimed
// row is selected, settled, sampled and deselected in index order; the
// direct-wired modes sample every claimed column port once with no row
// assertion. An invalidated plan scans nothing and returns false.
func (m *Matrix) Scan() bool {
	if !m.ready {
		return false
	}
	if m.strategy.hasRows {
		return m.scanRowColMode()
	}
	return m.scanRow(0)
}

func (m *Matrix) scanRowColMode() bool {
	changed := false
	for row := 0; row < int(m.plan.Rows); row++ {
		if m.rowPorts[row] == nil {
			// Claim conflict at Init; this row is disabled for the boot.
			continue
		}
		m.selectRow(row)
		m.settle()
		changed = m.scanRow(row) || changed
		m.unselectRow(row)
	}
	return changed
}

// settle waits for parasitic capacitance on the column lines to discharge
// before sampling. While any key is actively bouncing the longer
// debouncing delay is used; the shorter idle delay otherwise. This is a
// latency/power trade-off: bounce-sensitive timing is only needed while a
// transition is already in flight.
func (m *Matrix) settle() {
	if m.cfg.Debouncer.ActiveCount() > 0 {
		m.cfg.Delay(m.delays.debouncing)
	} else {
		m.cfg.Delay(m.delays.idle)
	}
}

// scanRow samples every claimed port's column mask and hands the raw
// sample to the debounce collaborator.
func (m *Matrix) scanRow(row int) bool {
	for portNum := 0; portNum < m.bytesPerRow; portNum++ {
		m.sampleBuf[portNum] = m.cfg.Bank.Port(portNum).Input() & m.colMasks[portNum]
	}
	return m.cfg.Debouncer.DebounceRow(row, m.sampleBuf)
}

// selectRow drives a row to its connected level.
func (m *Matrix) selectRow(row int) {
	m.writeRowLevel(m.rowPorts[row], m.rowMasks[row], m.strategy.rowSelectHigh)
}

// unselectRow returns a row to its disconnected level.
func (m *Matrix) unselectRow(row int) {
	m.writeRowLevel(m.rowPorts[row], m.rowMasks[row], !m.strategy.rowSelectHigh)
}

// selectAllRows drives every claimed row to its connected level.
func (m *Matrix) selectAllRows() {
	for portNum := 0; portNum < len(m.rowPortMasks); portNum++ {
		if mask := m.rowPortMasks[portNum]; mask != 0 {
			m.writeRowLevel(m.cfg.Bank.Port(portNum), mask, m.strategy.rowSelectHigh)
		}
	}
}

// unselectAllRows returns every claimed row to its disconnected level.
func (m *Matrix) unselectAllRows() {
	for portNum := 0; portNum < len(m.rowPortMasks); portNum++ {
		if mask := m.rowPortMasks[portNum]; mask != 0 {
			m.writeRowLevel(m.cfg.Bank.Port(portNum), mask, !m.strategy.rowSelectHigh)
		}
	}
}

// HasActiveRow reports whether any claimed column currently reads active.
// It is meaningful while all rows are held selected (immediately after a
// wake trigger) as a cheap filter before committing to a full scan.
func (m *Matrix) HasActiveRow() bool {
	if !m.ready {
		return false
	}
	for portNum := 0; portNum < m.bytesPerRow; portNum++ {
		if m.cfg.Bank.Port(portNum).Input()&m.colMasks[portNum] != 0 {
			return true
		}
	}
	return false
}
