package probe

import (
	"github.com/cesanta/errors"
	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
)

// OpenSerial opens portName for a board whose JTAG adapter is exposed as
// a serial device (common on dev boards with a single USB-UART bridge
// multiplexing JTAG and console). As with OpenHID, this stops at opening
// the port; the wire protocol on top of it is an external collaborator.
func OpenSerial(portName string, baudRate uint) (serial.Serial, error) {
	glog.Infof("opening %s at %d baud", portName, baudRate)
	oo := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		InterCharacterTimeout: 200,
		MinimumReadSize:       0,
	}
	s, err := serial.Open(oo)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", portName)
	}
	return s, nil
}
