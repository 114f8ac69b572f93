// Package config loads board layout files and turns them into validated
// scan plans and pin assignments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"keyplus-go-migration/pkg/ioport"
	"keyplus-go-migration/pkg/scanner"
)

// Default discharge delays, in reference-clock delay units.
const (
	DefaultDelayIdle       = 10
	DefaultDelayDebouncing = 20
)

// ConfigError is a configuration error with field context.
type ConfigError struct {
	Section string
	Option  string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("option '%s' in section '%s': %s", e.Option, e.Section, e.Message)
	}
	return fmt.Sprintf("section '%s': %s", e.Section, e.Message)
}

func newError(section, option, message string) *ConfigError {
	return &ConfigError{Section: section, Option: option, Message: message}
}

// MatrixSection is the matrix block of a layout file.
type MatrixSection struct {
	Mode                     string   `yaml:"mode"`
	RowPins                  []string `yaml:"row_pins"`
	ColPins                  []string `yaml:"col_pins"`
	DischargeDelayIdle       *uint8   `yaml:"discharge_delay_idle"`
	DischargeDelayDebouncing *uint8   `yaml:"discharge_delay_debouncing"`
}

// Layout is a parsed board layout file.
type Layout struct {
	Name   string        `yaml:"name"`
	Matrix MatrixSection `yaml:"matrix"`

	rowPins []ioport.PinAddr
	colPins []ioport.PinAddr
	mode    scanner.ScanMode
}

// Load reads and parses a layout file.
func Load(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading layout: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates layout YAML.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("config: parsing layout: %w", err)
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

func (l *Layout) validate() error {
	mode, err := ParseMode(l.Matrix.Mode)
	if err != nil {
		return newError("matrix", "mode", err.Error())
	}
	l.mode = mode

	hasRows := mode == scanner.ModeRowCol || mode == scanner.ModeColRow
	if hasRows {
		if len(l.Matrix.RowPins) == 0 {
			return newError("matrix", "row_pins", "must be specified for row/column modes")
		}
		l.rowPins = make([]ioport.PinAddr, 0, len(l.Matrix.RowPins))
		for _, s := range l.Matrix.RowPins {
			pin, err := ParsePinName(s)
			if err != nil {
				return newError("matrix", "row_pins", err.Error())
			}
			l.rowPins = append(l.rowPins, pin)
		}
	} else if len(l.Matrix.RowPins) != 0 {
		return newError("matrix", "row_pins", "not allowed for direct-wired modes")
	}

	if len(l.Matrix.ColPins) == 0 {
		return newError("matrix", "col_pins", "must be specified")
	}
	l.colPins = make([]ioport.PinAddr, 0, len(l.Matrix.ColPins))
	seen := make(map[int]string)
	for _, s := range l.Matrix.ColPins {
		pin, err := ParsePinName(s)
		if err != nil {
			return newError("matrix", "col_pins", err.Error())
		}
		if prev, dup := seen[pin.Index()]; dup {
			return newError("matrix", "col_pins",
				fmt.Sprintf("pin %s assigned twice (also %s)", s, prev))
		}
		seen[pin.Index()] = s
		l.colPins = append(l.colPins, pin)
	}

	return nil
}

// Mode returns the parsed scan mode.
func (l *Layout) Mode() scanner.ScanMode {
	return l.mode
}

// RowPins returns the parsed row pin assignments.
func (l *Layout) RowPins() []ioport.PinAddr {
	return l.rowPins
}

// ColPins returns the parsed column pin assignments.
func (l *Layout) ColPins() []ioport.PinAddr {
	return l.colPins
}

// Plan builds the scan plan the layout describes. MaxColPinIndex is
// derived from the highest column pin in use.
func (l *Layout) Plan() scanner.ScanPlan {
	maxIdx := 0
	for _, cp := range l.colPins {
		if cp.Index() > maxIdx {
			maxIdx = cp.Index()
		}
	}

	idle := uint8(DefaultDelayIdle)
	if l.Matrix.DischargeDelayIdle != nil {
		idle = *l.Matrix.DischargeDelayIdle
	}
	debouncing := uint8(DefaultDelayDebouncing)
	if l.Matrix.DischargeDelayDebouncing != nil {
		debouncing = *l.Matrix.DischargeDelayDebouncing
	}

	return scanner.ScanPlan{
		Rows:                     uint8(len(l.rowPins)),
		Cols:                     uint8(len(l.colPins)),
		Mode:                     l.mode,
		MaxColPinIndex:           uint8(maxIdx),
		DischargeDelayIdle:       idle,
		DischargeDelayDebouncing: debouncing,
	}
}

// ParseMode parses a scan mode name.
func ParseMode(s string) (scanner.ScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "row_col":
		return scanner.ModeRowCol, nil
	case "col_row":
		return scanner.ModeColRow, nil
	case "pin_vcc":
		return scanner.ModePinVCC, nil
	case "pin_gnd":
		return scanner.ModePinGND, nil
	case "":
		return 0, fmt.Errorf("scan mode must be specified")
	default:
		return 0, fmt.Errorf("'%s' is not a valid scan mode (valid: row_col, col_row, pin_vcc, pin_gnd)", s)
	}
}

// ParsePinName parses a pin name of the form "<port><bit>", e.g. "C3".
func ParsePinName(s string) (ioport.PinAddr, error) {
	d := strings.TrimSpace(strings.ToUpper(s))
	if len(d) < 2 {
		return ioport.PinAddr{}, fmt.Errorf("invalid pin name '%s'", s)
	}

	port := -1
	for i := 0; i < ioport.PortCount; i++ {
		if ioport.PortName(i) == d[:1] {
			port = i
			break
		}
	}
	if port < 0 {
		return ioport.PinAddr{}, fmt.Errorf("unknown port in pin name '%s'", s)
	}

	bit, err := strconv.Atoi(d[1:])
	if err != nil || bit < 0 || bit >= ioport.PortSize {
		return ioport.PinAddr{}, fmt.Errorf("invalid pin bit in '%s' (0-%d)", s, ioport.PortSize-1)
	}

	return ioport.PinAddr{Port: port, Bit: bit}, nil
}
