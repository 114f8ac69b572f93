// keyscan-sim is a command-line tool for exercising the matrix scanner
// against a simulated port bank. It loads a board layout, wires up the
// electrical simulation and accepts interactive commands to press and
// release keys, run scan sweeps and drive the wake-interrupt mode. An
// optional monitor server streams key events to websocket clients.
//
// Usage:
//
//	keyscan-sim [options]
//
// Options:
//
//	-config string      Board layout YAML (default: built-in 2x2 row_col)
//	-monitor string     Monitor server address, e.g. :7125 (off if empty)
//	-slow-clock         Calibrate delays for the reduced clock
//	-slow-clock-hz int  Reduced clock frequency (default: 2000000)
//	-log-level string   Log level: debug, info, warn, error
//
// Commands on stdin:
//
//	press <row> <col>    close a switch
//	release <row> <col>  open a switch
//	scan [n]             run n scan sweeps (default 1)
//	wake                 arm wake-on-keypress
//	unwake               disarm wake and resume active state
//	poll                 poll the wake trigger and active-row filter
//	status               print scanner status
//	quit                 exit
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"keyplus-go-migration/pkg/config"
	"keyplus-go-migration/pkg/debounce"
	"keyplus-go-migration/pkg/faults"
	"keyplus-go-migration/pkg/ioport"
	"keyplus-go-migration/pkg/log"
	"keyplus-go-migration/pkg/monitor"
	"keyplus-go-migration/pkg/scanner"
)

const defaultLayout = `
name: sim-2x2
matrix:
  mode: row_col
  row_pins: [B0, B1]
  col_pins: [C0, C1]
  discharge_delay_idle: 10
  discharge_delay_debouncing: 20
`

// statusAdapter exposes scanner state to the monitor server.
type statusAdapter struct {
	matrix *scanner.Matrix
	deb    *debounce.Debouncer
	reg    *faults.Register
}

func (a *statusAdapter) MatrixStatus() monitor.MatrixStatus {
	plan := a.matrix.Plan()

	masks := make([]uint8, ioport.PortCount)
	for i := range masks {
		masks[i] = a.matrix.ColumnMask(i)
	}

	var faultNames []string
	for _, f := range a.reg.All() {
		faultNames = append(faultNames, f.String())
	}

	return monitor.MatrixStatus{
		Ready:          a.matrix.Ready(),
		Mode:           plan.Mode.String(),
		Rows:           int(plan.Rows),
		Cols:           int(plan.Cols),
		ColumnMasks:    masks,
		PressedCount:   a.deb.PressedCount(),
		ActiveDebounce: a.deb.ActiveCount(),
		Faults:         faultNames,
	}
}

func main() {
	configPath := flag.String("config", "", "Board layout YAML file")
	monitorAddr := flag.String("monitor", "", "Monitor server address (e.g. :7125)")
	slowClock := flag.Bool("slow-clock", false, "Calibrate delays for the reduced clock")
	slowClockHz := flag.Uint("slow-clock-hz", 2_000_000, "Reduced clock frequency in Hz")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := log.New(os.Stderr, log.ParseLevel(*logLevel)).WithPrefix("keyscan-sim")

	var layout *config.Layout
	var err error
	if *configPath != "" {
		layout, err = config.Load(*configPath)
	} else {
		layout, err = config.Parse([]byte(defaultLayout))
	}
	if err != nil {
		logger.Errorf("loading layout: %v", err)
		os.Exit(1)
	}

	plan := layout.Plan()
	logger.Info("layout loaded", log.Fields{
		"name": layout.Name,
		"mode": plan.Mode.String(),
		"rows": plan.Rows,
		"cols": plan.Cols,
	})

	bank := ioport.NewSimBank()
	arbiter := ioport.NewTableArbiter()
	reg := faults.New()
	reg.OnFault(func(f faults.Fault) {
		logger.Warnf("fault registered: %s", f)
	})

	sim := ioport.NewMatrixSim(bank, ioport.WiringConfig{
		RowPins:       layout.RowPins(),
		ColPins:       layout.ColPins(),
		HasRows:       plan.Mode == scanner.ModeRowCol || plan.Mode == scanner.ModeColRow,
		RowSelectHigh: plan.Mode == scanner.ModeColRow,
	})

	bytesPerRow := (int(plan.MaxColPinIndex) + ioport.PortSize) / ioport.PortSize
	rows := int(plan.Rows)
	if rows < 1 {
		rows = 1
	}

	var srv *monitor.Server
	debCfg := debounce.DefaultConfig()
	debCfg.Rows = rows
	debCfg.BytesPerRow = bytesPerRow
	debCfg.OnKeyEvent = func(row, col int, pressed bool) {
		logger.Info("key event", log.Fields{"row": row, "col": col, "pressed": pressed})
		if srv != nil {
			srv.Publish(monitor.KeyEvent(row, col, pressed))
		}
	}
	deb := debounce.New(debCfg)

	matrix := scanner.New(scanner.Config{
		Bank:        bank,
		Arbiter:     arbiter,
		Debouncer:   deb,
		Faults:      reg,
		RowPins:     layout.RowPins(),
		ColPins:     layout.ColPins(),
		SlowClock:   *slowClock,
		SlowClockHz: uint32(*slowClockHz),
		Delay:       func(units uint8) {}, // simulated ports settle instantly
	})

	if err := matrix.Init(plan); err != nil {
		logger.Errorf("matrix init: %v", err)
		os.Exit(1)
	}
	idle, debouncing := matrix.Delays()
	logger.Debug("matrix initialized", log.Fields{
		"delay_idle":       idle,
		"delay_debouncing": debouncing,
	})

	if *monitorAddr != "" {
		srv = monitor.New(monitor.Config{
			Addr:    *monitorAddr,
			Scanner: &statusAdapter{matrix: matrix, deb: deb, reg: reg},
		})
		reg.OnFault(func(f faults.Fault) {
			srv.Publish(monitor.FaultEvent(f.String()))
		})
		if err := srv.Start(); err != nil {
			logger.Errorf("monitor server: %v", err)
			os.Exit(1)
		}
		defer srv.Stop()
		logger.Infof("monitor server listening on %s", *monitorAddr)
	}

	runCommands(os.Stdin, matrix, sim, deb, reg)
}

func runCommands(in *os.File, matrix *scanner.Matrix, sim *ioport.MatrixSim,
	deb *debounce.Debouncer, reg *faults.Register) {

	sc := bufio.NewScanner(in)
	fmt.Println("keyscan-sim ready; type 'help' for commands")

	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		parts := strings.Fields(sc.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "help":
			fmt.Println("press <r> <c> | release <r> <c> | scan [n] | wake | unwake | poll | status | quit")

		case "press", "release":
			row, col, err := parseKeyArgs(parts)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if parts[0] == "press" {
				sim.Press(row, col)
			} else {
				sim.Release(row, col)
			}

		case "scan":
			n := 1
			if len(parts) > 1 {
				if v, err := strconv.Atoi(parts[1]); err == nil && v > 0 {
					n = v
				}
			}
			changed := false
			for i := 0; i < n; i++ {
				changed = matrix.Scan() || changed
			}
			fmt.Printf("scan x%d: changed=%v pressed=%d\n", n, changed, deb.PressedCount())

		case "wake":
			matrix.EnableWake()
			fmt.Println("wake armed")

		case "unwake":
			matrix.DisableWake()
			fmt.Println("wake disarmed")

		case "poll":
			triggered := matrix.WakeTriggered()
			fmt.Printf("triggered=%v active_row=%v\n", triggered, matrix.HasActiveRow())
			if triggered {
				matrix.ClearWake()
			}

		case "status":
			plan := matrix.Plan()
			fmt.Printf("ready=%v mode=%s rows=%d cols=%d pressed=%d debouncing=%d faults=%d\n",
				matrix.Ready(), plan.Mode, plan.Rows, plan.Cols,
				deb.PressedCount(), deb.ActiveCount(), reg.Len())
			for _, f := range reg.All() {
				fmt.Printf("  fault: %s\n", f)
			}

		case "quit", "exit":
			return

		default:
			fmt.Printf("unknown command %q\n", parts[0])
		}
	}
}

func parseKeyArgs(parts []string) (row, col int, err error) {
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("usage: %s <row> <col>", parts[0])
	}
	row, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad row %q", parts[1])
	}
	col, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad col %q", parts[2])
	}
	return row, col, nil
}
