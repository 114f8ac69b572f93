// spidev stub for non-Linux platforms.
//
// The spidev interface is only available on Linux. This stub provides
// compile-time compatibility for other platforms.

//go:build !linux

package radio

// SPIDev is a Transport over a Linux spidev device (stub for non-Linux).
type SPIDev struct{}

// OpenSPIDev opens a spidev transport (stub).
func OpenSPIDev(cfg Config) (*SPIDev, error) {
	return nil, ErrUnsupported
}

// Exchange shifts one byte (stub).
func (s *SPIDev) Exchange(tx byte) (byte, error) {
	return 0, ErrUnsupported
}

// ExchangeMulti performs a full-duplex transfer (stub).
func (s *SPIDev) ExchangeMulti(tx, rx []byte) error {
	return ErrUnsupported
}

// Close releases the device (stub).
func (s *SPIDev) Close() error {
	return nil
}
