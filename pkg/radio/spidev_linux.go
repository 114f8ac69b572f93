//go:build linux

package radio

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl request numbers (linux/spi/spidev.h).
const (
	spiIOCWrMode        = 0x40016b01
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCWrMaxSpeedHz  = 0x40046b04
	spiIOCMessage1      = 0x40206b00
)

// spiIOCTransfer mirrors struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// SPIDev is a Transport over a Linux spidev device. The radio wants SPI
// mode 0, MSB first, 8-bit words.
type SPIDev struct {
	mu      sync.Mutex
	fd      int
	speedHz uint32
	closed  bool
}

// OpenSPIDev opens and configures a spidev transport.
func OpenSPIDev(cfg Config) (*SPIDev, error) {
	if cfg.Device == "" {
		cfg = DefaultConfig()
	}
	speed := cfg.SpeedHz
	if speed == 0 {
		speed = DefaultConfig().SpeedHz
	}
	if speed > MaxSPISpeedHz {
		speed = MaxSPISpeedHz
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("radio: opening %s: %w", cfg.Device, err)
	}

	s := &SPIDev{fd: fd, speedHz: speed}

	mode := uint8(0)
	bits := uint8(8)
	if err := s.ioctl(spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("radio: setting spi mode: %w", err)
	}
	if err := s.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("radio: setting word size: %w", err)
	}
	if err := s.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("radio: setting spi speed: %w", err)
	}

	return s, nil
}

func (s *SPIDev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Exchange shifts one byte out and returns the byte shifted in.
func (s *SPIDev) Exchange(tx byte) (byte, error) {
	rx := []byte{0}
	if err := s.ExchangeMulti([]byte{tx}, rx); err != nil {
		return 0, err
	}
	return rx[0], nil
}

// ExchangeMulti performs a full-duplex transfer in one chip-select
// assertion.
func (s *SPIDev) ExchangeMulti(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return fmt.Errorf("radio: tx/rx length mismatch (%d != %d)", len(tx), len(rx))
	}
	if len(tx) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     s.speedHz,
		bitsPerWord: 8,
	}
	if err := s.ioctl(spiIOCMessage1, unsafe.Pointer(&xfer)); err != nil {
		return fmt.Errorf("radio: spi transfer: %w", err)
	}
	return nil
}

// Close releases the device.
func (s *SPIDev) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
