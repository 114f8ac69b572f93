package scanner

import (
	"testing"

	"keyplus-go-migration/pkg/debounce"
	"keyplus-go-migration/pkg/faults"
	"keyplus-go-migration/pkg/ioport"
)

// testRig bundles a matrix with its simulated collaborators.
type testRig struct {
	bank    *ioport.SimBank
	arbiter *ioport.TableArbiter
	reg     *faults.Register
	deb     *debounce.Debouncer
	sim     *ioport.MatrixSim
	matrix  *Matrix
}

// newRig builds a rig for the given mode and geometry. Delay is a no-op;
// the simulated ports settle instantly.
func newRig(t *testing.T, mode ScanMode, rowPins, colPins []ioport.PinAddr) *testRig {
	t.Helper()

	hasRows := mode == ModeRowCol || mode == ModeColRow

	rig := &testRig{
		bank:    ioport.NewSimBank(),
		arbiter: ioport.NewTableArbiter(),
		reg:     faults.New(),
	}

	maxIdx := 0
	for _, cp := range colPins {
		if cp.Index() > maxIdx {
			maxIdx = cp.Index()
		}
	}
	bytesPerRow := (maxIdx + ioport.PortSize) / ioport.PortSize

	rows := len(rowPins)
	if !hasRows || rows < 1 {
		rows = 1
	}
	rig.deb = debounce.New(debounce.Config{
		Rows:             rows,
		BytesPerRow:      bytesPerRow,
		PressThreshold:   1,
		ReleaseThreshold: 1,
	})

	rig.sim = ioport.NewMatrixSim(rig.bank, ioport.WiringConfig{
		RowPins:       rowPins,
		ColPins:       colPins,
		HasRows:       hasRows,
		RowSelectHigh: mode == ModeColRow,
	})

	rig.matrix = New(Config{
		Bank:      rig.bank,
		Arbiter:   rig.arbiter,
		Debouncer: rig.deb,
		Faults:    rig.reg,
		RowPins:   rowPins,
		ColPins:   colPins,
		Delay:     func(uint8) {},
	})
	return rig
}

func pins(addrs ...ioport.PinAddr) []ioport.PinAddr {
	return addrs
}

func pin(port, bit int) ioport.PinAddr {
	return ioport.PinAddr{Port: port, Bit: bit}
}

func plan2x2(mode ScanMode) ScanPlan {
	return ScanPlan{
		Rows:                     2,
		Cols:                     2,
		Mode:                     mode,
		MaxColPinIndex:           uint8(pin(2, 1).Index()),
		DischargeDelayIdle:       10,
		DischargeDelayDebouncing: 20,
	}
}

func TestInitClaimsPins(t *testing.T) {
	rig := newRig(t, ModeRowCol, pins(pin(1, 0), pin(1, 1)), pins(pin(2, 0), pin(2, 1)))

	if err := rig.matrix.Init(plan2x2(ModeRowCol)); err != nil {
		t.Fatalf("Init returned %v, want nil", err)
	}

	if got := rig.arbiter.Claimed(1); got != 0x03 {
		t.Errorf("row port claims = %#02x, want 0x03", got)
	}
	if got := rig.arbiter.Claimed(2); got != 0x03 {
		t.Errorf("column port claims = %#02x, want 0x03", got)
	}
	if got := rig.matrix.ColumnMask(2); got != 0x03 {
		t.Errorf("ColumnMask(2) = %#02x, want 0x03", got)
	}
	if got := rig.matrix.ColumnMask(1); got != 0 {
		t.Errorf("ColumnMask(1) = %#02x, want 0 (row port has no columns)", got)
	}
	if got := rig.matrix.BytesPerRow(); got != 3 {
		t.Errorf("BytesPerRow = %d, want 3", got)
	}
	if rig.reg.Len() != 0 {
		t.Errorf("faults registered = %d, want 0", rig.reg.Len())
	}
}

func TestInitConfigTooLarge(t *testing.T) {
	rowPins := make([]ioport.PinAddr, MaxRows+1)
	for i := range rowPins {
		rowPins[i] = pin(i/ioport.PortSize, i%ioport.PortSize)
	}
	rig := newRig(t, ModeRowCol, rowPins, pins(pin(2, 0)))

	plan := ScanPlan{
		Rows:           MaxRows + 1,
		Cols:           1,
		Mode:           ModeRowCol,
		MaxColPinIndex: uint8(pin(2, 0).Index()),
	}
	if err := rig.matrix.Init(plan); err != ErrConfigTooLarge {
		t.Fatalf("Init returned %v, want ErrConfigTooLarge", err)
	}
	if !rig.reg.Has(faults.ConfigTooLarge) {
		t.Error("ConfigTooLarge fault should be registered")
	}
	if rig.matrix.Plan() != (ScanPlan{}) {
		t.Errorf("plan = %+v, want zeroed", rig.matrix.Plan())
	}
	if rig.matrix.Ready() {
		t.Error("matrix should not be ready")
	}
	if rig.matrix.Scan() {
		t.Error("Scan on invalidated plan should return false")
	}
	for p := 0; p < ioport.PortCount; p++ {
		if rig.arbiter.Claimed(p) != 0 {
			t.Errorf("port %d claimed %#02x, want 0 (no claiming after rejection)",
				p, rig.arbiter.Claimed(p))
		}
	}
}

func TestInitColPinIndexTooLarge(t *testing.T) {
	rig := newRig(t, ModeRowCol, pins(pin(1, 0)), pins(pin(2, 0)))

	plan := ScanPlan{
		Rows:           1,
		Cols:           1,
		Mode:           ModeRowCol,
		MaxColPinIndex: MaxPinIndex, // within bounds
	}
	plan.MaxColPinIndex = MaxPinIndex + 1
	if err := rig.matrix.Init(plan); err != ErrConfigTooLarge {
		t.Fatalf("Init returned %v, want ErrConfigTooLarge", err)
	}
	if !rig.reg.Has(faults.ConfigTooLarge) {
		t.Error("ConfigTooLarge fault should be registered")
	}
}

func TestInitUnsupportedMode(t *testing.T) {
	rig := newRig(t, ModeRowCol, pins(pin(1, 0)), pins(pin(2, 0)))

	plan := ScanPlan{Rows: 1, Cols: 1, Mode: ScanMode(9), MaxColPinIndex: uint8(pin(2, 0).Index())}
	if err := rig.matrix.Init(plan); err != ErrUnsupportedMode {
		t.Fatalf("Init returned %v, want ErrUnsupportedMode", err)
	}
	if !rig.reg.Has(faults.UnsupportedScanMode) {
		t.Error("UnsupportedScanMode fault should be registered")
	}
	if rig.matrix.Scan() {
		t.Error("Scan with unsupported mode should return false")
	}
}

func TestRowBoundIgnoredForDirectWiredModes(t *testing.T) {
	// The direct-wired modes have no discrete row dimension; a stale Rows
	// value in the plan must not reject it.
	rig := newRig(t, ModePinGND, nil, pins(pin(2, 0), pin(2, 1)))

	plan := ScanPlan{
		Rows:           MaxRows + 5,
		Cols:           2,
		Mode:           ModePinGND,
		MaxColPinIndex: uint8(pin(2, 1).Index()),
	}
	if err := rig.matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v, want nil", err)
	}
	if !rig.matrix.Ready() {
		t.Error("matrix should be ready")
	}
}

func TestRowPolarity(t *testing.T) {
	tests := []struct {
		mode         ScanMode
		selectedHigh bool
		describeWant string
	}{
		{ModeRowCol, false, "cleared (wired-or, inverted driver)"},
		{ModeColRow, true, "set (wired-and driver)"},
	}

	for _, tt := range tests {
		rig := newRig(t, tt.mode, pins(pin(1, 3)), pins(pin(2, 0)))
		plan := ScanPlan{Rows: 1, Cols: 1, Mode: tt.mode, MaxColPinIndex: uint8(pin(2, 0).Index())}
		if err := rig.matrix.Init(plan); err != nil {
			t.Fatalf("%s: Init returned %v", tt.mode, err)
		}

		port := rig.bank.Sim(1)
		mask := uint8(1 << 3)

		// Initial state is unselected.
		if got := port.Output()&mask != 0; got == tt.selectedHigh {
			t.Errorf("%s: initial row bit selected, want unselected", tt.mode)
		}

		rig.matrix.selectRow(0)
		if got := port.Output()&mask != 0; got != tt.selectedHigh {
			t.Errorf("%s: selected row bit high=%v, want %s", tt.mode, got, tt.describeWant)
		}

		rig.matrix.unselectRow(0)
		if got := port.Output()&mask != 0; got == tt.selectedHigh {
			t.Errorf("%s: unselected row bit still at select level", tt.mode)
		}
	}
}

func TestColumnPinConfig(t *testing.T) {
	tests := []struct {
		mode   ScanMode
		pull   ioport.Pull
		invert bool
	}{
		{ModeRowCol, ioport.PullDown, false},
		{ModeColRow, ioport.PullUp, true},
		{ModePinVCC, ioport.PullDown, false},
		{ModePinGND, ioport.PullUp, true},
	}

	for _, tt := range tests {
		var rowPins []ioport.PinAddr
		rows := uint8(0)
		if tt.mode == ModeRowCol || tt.mode == ModeColRow {
			rowPins = pins(pin(1, 0))
			rows = 1
		}
		rig := newRig(t, tt.mode, rowPins, pins(pin(2, 5)))
		plan := ScanPlan{Rows: rows, Cols: 1, Mode: tt.mode, MaxColPinIndex: uint8(pin(2, 5).Index())}
		if err := rig.matrix.Init(plan); err != nil {
			t.Fatalf("%s: Init returned %v", tt.mode, err)
		}

		cfg := rig.bank.Sim(2).PinConfigAt(5)
		if cfg.Pull != tt.pull {
			t.Errorf("%s: column pull = %v, want %v", tt.mode, cfg.Pull, tt.pull)
		}
		if cfg.Invert != tt.invert {
			t.Errorf("%s: column invert = %v, want %v", tt.mode, cfg.Invert, tt.invert)
		}
		if cfg.Sense != ioport.SenseBothEdges {
			t.Errorf("%s: column sense = %v, want both edges", tt.mode, cfg.Sense)
		}
	}
}

func TestScanEndToEnd(t *testing.T) {
	rig := newRig(t, ModeRowCol, pins(pin(1, 0), pin(1, 1)), pins(pin(2, 0), pin(2, 1)))
	if err := rig.matrix.Init(plan2x2(ModeRowCol)); err != nil {
		t.Fatalf("Init returned %v", err)
	}

	if rig.matrix.Scan() {
		t.Error("scan of idle matrix should report no change")
	}

	rig.sim.Press(0, 1)
	if !rig.matrix.Scan() {
		t.Error("scan after press should report a change")
	}
	if !rig.deb.IsPressed(0, pin(2, 1).Index()) {
		t.Error("key at row 0, pin C1 should be confirmed pressed")
	}

	// Unchanged physical input, key already confirmed.
	if rig.matrix.Scan() {
		t.Error("second scan with unchanged input should report no change")
	}

	rig.sim.Release(0, 1)
	if !rig.matrix.Scan() {
		t.Error("scan after release should report a change")
	}
}

func TestScanDirectWiredMode(t *testing.T) {
	rig := newRig(t, ModePinGND, nil, pins(pin(2, 0), pin(2, 1)))
	plan := ScanPlan{Rows: 0, Cols: 2, Mode: ModePinGND, MaxColPinIndex: uint8(pin(2, 1).Index())}
	if err := rig.matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v", err)
	}

	rig.sim.Press(0, 1)
	if !rig.matrix.Scan() {
		t.Error("direct-wired scan after press should report a change")
	}
	if rig.matrix.Scan() {
		t.Error("second scan with unchanged input should report no change")
	}
}

func TestConflictResilience(t *testing.T) {
	rowPins := pins(pin(1, 0), pin(1, 1))
	colPins := pins(pin(2, 0), pin(2, 1))
	rig := newRig(t, ModeRowCol, rowPins, colPins)

	// Another peripheral owns row 1's pin.
	if err := rig.arbiter.Claim(1, pin(1, 1).Mask()); err != nil {
		t.Fatalf("pre-claim failed: %v", err)
	}

	if err := rig.matrix.Init(plan2x2(ModeRowCol)); err != nil {
		t.Fatalf("Init returned %v, want nil (degraded mode)", err)
	}
	if got := rig.reg.Count(faults.PinMappingConflict); got < 1 {
		t.Fatalf("PinMappingConflict count = %d, want >= 1", got)
	}

	// A key on the disabled row never reads: its row line is never driven.
	rig.sim.Press(1, 0)
	if rig.matrix.Scan() {
		t.Error("scan should ignore keys on the unclaimed row")
	}

	// The surviving row still scans.
	rig.sim.Press(0, 0)
	if !rig.matrix.Scan() {
		t.Error("scan should still see keys on the claimed row")
	}

	// The conflicting pin's output register is never touched.
	if out := rig.bank.Sim(1).DirOutput() & pin(1, 1).Mask(); out != 0 {
		t.Errorf("conflicting row pin direction = output, want untouched")
	}
}

func TestDuplicateRowPinConflict(t *testing.T) {
	// Two logical rows bound to the same physical pin: the second claim
	// is denied and only the first row contributes to scans.
	deb := &recordingDebouncer{}
	reg := faults.New()
	matrix := New(Config{
		Bank:      ioport.NewSimBank(),
		Arbiter:   ioport.NewTableArbiter(),
		Debouncer: deb,
		Faults:    reg,
		RowPins:   pins(pin(1, 0), pin(1, 0)),
		ColPins:   pins(pin(2, 0)),
		Delay:     func(uint8) {},
	})

	plan := ScanPlan{Rows: 2, Cols: 1, Mode: ModeRowCol, MaxColPinIndex: uint8(pin(2, 0).Index())}
	if err := matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v, want nil", err)
	}
	if got := reg.Count(faults.PinMappingConflict); got < 1 {
		t.Errorf("PinMappingConflict count = %d, want >= 1", got)
	}

	matrix.Scan()
	if len(deb.rows) != 1 || deb.rows[0] != 0 {
		t.Errorf("debounced rows = %v, want [0] (duplicate row excluded)", deb.rows)
	}
}

func TestConflictSurfacesEveryPin(t *testing.T) {
	rowPins := pins(pin(1, 0), pin(1, 1), pin(1, 2))
	colPins := pins(pin(2, 0))
	rig := newRig(t, ModeRowCol, rowPins, colPins)

	// Two separate conflicts in one boot; both must be surfaced.
	rig.arbiter.Claim(1, pin(1, 0).Mask())
	rig.arbiter.Claim(1, pin(1, 2).Mask())

	plan := ScanPlan{Rows: 3, Cols: 1, Mode: ModeRowCol, MaxColPinIndex: uint8(pin(2, 0).Index())}
	if err := rig.matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v, want nil", err)
	}
	if got := rig.reg.Count(faults.PinMappingConflict); got != 2 {
		t.Errorf("PinMappingConflict count = %d, want 2 (setup continues past conflicts)", got)
	}
}

func TestColumnClaimConflictZeroesPort(t *testing.T) {
	rig := newRig(t, ModeRowCol, pins(pin(1, 0)), pins(pin(2, 0), pin(3, 0)))

	// The whole of port 2's column group is pre-owned.
	rig.arbiter.Claim(2, pin(2, 0).Mask())

	plan := ScanPlan{Rows: 1, Cols: 2, Mode: ModeRowCol, MaxColPinIndex: uint8(pin(3, 0).Index())}
	if err := rig.matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v, want nil", err)
	}
	if !rig.reg.Has(faults.PinMappingConflict) {
		t.Error("PinMappingConflict should be registered for the column group")
	}
	if got := rig.matrix.ColumnMask(2); got != 0 {
		t.Errorf("ColumnMask(2) = %#02x, want 0 after conflict", got)
	}
	if got := rig.matrix.ColumnMask(3); got != pin(3, 0).Mask() {
		t.Errorf("ColumnMask(3) = %#02x, want %#02x (later group still configured)",
			got, pin(3, 0).Mask())
	}
}

// recordingDebouncer reports a fixed active count and records samples.
type recordingDebouncer struct {
	activeCount int
	rows        []int
}

func (d *recordingDebouncer) DebounceRow(row int, sample []byte) bool {
	d.rows = append(d.rows, row)
	return false
}

func (d *recordingDebouncer) ActiveCount() int {
	return d.activeCount
}

func TestSettleDelaySelection(t *testing.T) {
	deb := &recordingDebouncer{}
	var delays []uint8

	bank := ioport.NewSimBank()
	matrix := New(Config{
		Bank:      bank,
		Arbiter:   ioport.NewTableArbiter(),
		Debouncer: deb,
		Faults:    faults.New(),
		RowPins:   pins(pin(1, 0)),
		ColPins:   pins(pin(2, 0)),
		Delay:     func(units uint8) { delays = append(delays, units) },
	})

	plan := ScanPlan{
		Rows:                     1,
		Cols:                     1,
		Mode:                     ModeRowCol,
		MaxColPinIndex:           uint8(pin(2, 0).Index()),
		DischargeDelayIdle:       10,
		DischargeDelayDebouncing: 20,
	}
	if err := matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v", err)
	}

	delays = nil
	matrix.Scan()
	if len(delays) != 1 || delays[0] != 10 {
		t.Errorf("idle scan delays = %v, want [10]", delays)
	}

	deb.activeCount = 3
	delays = nil
	matrix.Scan()
	if len(delays) != 1 || delays[0] != 20 {
		t.Errorf("debouncing scan delays = %v, want [20]", delays)
	}
}

func TestScanSkipsUnclaimedRows(t *testing.T) {
	deb := &recordingDebouncer{}
	arbiter := ioport.NewTableArbiter()
	arbiter.Claim(1, pin(1, 1).Mask())

	matrix := New(Config{
		Bank:      ioport.NewSimBank(),
		Arbiter:   arbiter,
		Debouncer: deb,
		Faults:    faults.New(),
		RowPins:   pins(pin(1, 0), pin(1, 1), pin(1, 2)),
		ColPins:   pins(pin(2, 0)),
		Delay:     func(uint8) {},
	})
	plan := ScanPlan{Rows: 3, Cols: 1, Mode: ModeRowCol, MaxColPinIndex: uint8(pin(2, 0).Index())}
	if err := matrix.Init(plan); err != nil {
		t.Fatalf("Init returned %v", err)
	}

	matrix.Scan()
	if len(deb.rows) != 2 || deb.rows[0] != 0 || deb.rows[1] != 2 {
		t.Errorf("debounced rows = %v, want [0 2]", deb.rows)
	}
}
