package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port. It lets
// tests run without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortFactory opens serial ports.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}
