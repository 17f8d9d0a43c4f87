package radio

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// DefaultBaud is the SA818 factory UART speed.
const DefaultBaud = 9600

// OpenSerial opens port at baud, 8N1. A baud of 0 selects [DefaultBaud].
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	rw, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        baud,
		DataBits:        8,
		ParityMode:      serial.PARITY_NONE,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("radio: open serial %s: %w", port, err)
	}
	return rw, nil
}
