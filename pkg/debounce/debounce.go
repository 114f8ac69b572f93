// Package debounce turns raw matrix samples into stable key transitions.
// The scanner feeds it one raw column sample per row per sweep; a key's
// stable state only changes after the raw level has disagreed with it for
// a configured number of consecutive samples.
package debounce

import "sync"

// Config holds debounce thresholds and matrix geometry.
type Config struct {
	// Rows is the number of logical rows tracked (1 for the direct-wired
	// modes).
	Rows int

	// BytesPerRow is the width of a raw row sample in bytes.
	BytesPerRow int

	// PressThreshold is the number of consecutive active samples needed
	// to confirm a press. 1 confirms on the first active sample, which
	// keeps press latency at a single sweep.
	PressThreshold uint8

	// ReleaseThreshold is the number of consecutive inactive samples
	// needed to confirm a release. Releases are held longer because
	// contact break bounce lasts longer than make bounce.
	ReleaseThreshold uint8

	// OnKeyEvent, when set, is called after every confirmed transition.
	OnKeyEvent func(row, col int, pressed bool)
}

// DefaultConfig returns thresholds suitable for common switches.
func DefaultConfig() Config {
	return Config{
		PressThreshold:   1,
		ReleaseThreshold: 4,
	}
}

// Debouncer tracks per-key stable state and bounce counters. It is safe
// for a monitor goroutine to query while the foreground scan loop feeds
// samples.
type Debouncer struct {
	mu  sync.Mutex
	cfg Config

	// stable is the confirmed key bitmap, one byte slice per row.
	stable [][]uint8

	// counters counts consecutive disagreeing samples per key.
	counters [][]uint8

	active int
}

// New creates a Debouncer for the given geometry. Thresholds of zero are
// raised to one.
func New(cfg Config) *Debouncer {
	if cfg.PressThreshold == 0 {
		cfg.PressThreshold = 1
	}
	if cfg.ReleaseThreshold == 0 {
		cfg.ReleaseThreshold = 1
	}
	if cfg.Rows < 1 {
		cfg.Rows = 1
	}

	d := &Debouncer{cfg: cfg}
	d.stable = make([][]uint8, cfg.Rows)
	d.counters = make([][]uint8, cfg.Rows)
	for r := 0; r < cfg.Rows; r++ {
		d.stable[r] = make([]uint8, cfg.BytesPerRow)
		d.counters[r] = make([]uint8, cfg.BytesPerRow*8)
	}
	return d
}

// DebounceRow consumes one raw sample for a row and reports whether any
// key's stable state changed.
func (d *Debouncer) DebounceRow(row int, sample []byte) bool {
	d.mu.Lock()

	if row < 0 || row >= len(d.stable) {
		d.mu.Unlock()
		return false
	}

	changed := false
	var events [][3]int // row, col, pressed(1/0)

	n := len(d.stable[row])
	if len(sample) < n {
		n = len(sample)
	}
	for b := 0; b < n; b++ {
		raw := sample[b]
		for bit := 0; bit < 8; bit++ {
			mask := uint8(1) << uint(bit)
			col := b*8 + bit
			pressed := d.stable[row][b]&mask != 0
			rawActive := raw&mask != 0

			if rawActive == pressed {
				if d.counters[row][col] != 0 {
					d.counters[row][col] = 0
					d.active--
				}
				continue
			}

			if d.counters[row][col] == 0 {
				d.active++
			}
			d.counters[row][col]++

			threshold := d.cfg.PressThreshold
			if pressed {
				threshold = d.cfg.ReleaseThreshold
			}
			if d.counters[row][col] < threshold {
				continue
			}

			d.stable[row][b] ^= mask
			d.counters[row][col] = 0
			d.active--
			changed = true
			if d.cfg.OnKeyEvent != nil {
				p := 0
				if !pressed {
					p = 1
				}
				events = append(events, [3]int{row, col, p})
			}
		}
	}

	fn := d.cfg.OnKeyEvent
	d.mu.Unlock()

	for _, e := range events {
		fn(e[0], e[1], e[2] == 1)
	}
	return changed
}

// ActiveCount returns the number of keys currently mid-debounce.
func (d *Debouncer) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// IsPressed reports the confirmed state of a key.
func (d *Debouncer) IsPressed(row, col int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 0 || row >= len(d.stable) {
		return false
	}
	b, bit := col/8, uint(col%8)
	if b < 0 || b >= len(d.stable[row]) {
		return false
	}
	return d.stable[row][b]&(1<<bit) != 0
}

// PressedCount returns the number of keys in the confirmed-pressed state.
func (d *Debouncer) PressedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, rowBytes := range d.stable {
		for _, v := range rowBytes {
			for ; v != 0; v &= v - 1 {
				count++
			}
		}
	}
	return count
}
