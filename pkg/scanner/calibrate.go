package scanner

// ReferenceClockHz is the clock frequency the configured discharge delay
// units are calibrated against.
const ReferenceClockHz = 16_000_000

// CalibrateDelay rescales a configured delay value from the reference
// clock to clockHz. The physical wait represented by a delay unit is
// dominated by fixed resistor/capacitor physics, not instruction rate, so
// the unit count must shrink with the clock to keep the real-world settle
// time invariant. The multiply happens before the integer divide, so the
// result truncates (100 units at 2 MHz yields 12, not 13).
func CalibrateDelay(units uint8, clockHz uint32) uint8 {
	if clockHz == 0 || clockHz == ReferenceClockHz {
		return units
	}
	base := uint16(ReferenceClockHz / 1_000_000)
	factor := uint16(clockHz / 1_000_000)
	return uint8(uint16(units) * factor / base)
}

// clockDelays holds the calibrated settle delays, computed once at Init
// and never recomputed at runtime.
type clockDelays struct {
	idle       uint8
	debouncing uint8
}

func calibrateDelays(plan ScanPlan, slowClock bool, slowClockHz uint32) clockDelays {
	if !slowClock {
		return clockDelays{
			idle:       plan.DischargeDelayIdle,
			debouncing: plan.DischargeDelayDebouncing,
		}
	}
	return clockDelays{
		idle:       CalibrateDelay(plan.DischargeDelayIdle, slowClockHz),
		debouncing: CalibrateDelay(plan.DischargeDelayDebouncing, slowClockHz),
	}
}
