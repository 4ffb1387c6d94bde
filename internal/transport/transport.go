// Package transport moves protocol packets between the host and an external
// glitcher unit.
package transport

// Transport performs command/response transactions with the device.
type Transport interface {
	WriteRead(cmd []byte) ([]byte, error)
	Close() error
}

// Loopback routes every command through a handler function. It backs tests
// and the simulated device.
type Loopback struct {
	Handler func(cmd []byte) ([]byte, error)
	closed  bool
}

func (l *Loopback) WriteRead(cmd []byte) ([]byte, error) {
	return l.Handler(cmd)
}

func (l *Loopback) Close() error {
	l.closed = true
	return nil
}

// Closed reports whether Close was called.
func (l *Loopback) Closed() bool { return l.closed }
