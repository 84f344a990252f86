package glitch

import (
	"golang.org/x/sys/unix"
)

// lowLatencyFlag is ASYNC_LOW_LATENCY from <linux/serial.h>.
const lowLatencyFlag = 0x2000

// serialStruct mirrors Linux's struct serial_struct, used only to set
// the low-latency flag via TIOCGSERIAL/TIOCSSERIAL.
type serialStruct struct {
	Type            int32
	Line            int32
	Port            uint32
	IRQ             int32
	Flags           int32
	XmitFifoSize    int32
	CustomDivisor   int32
	BaudBase        int32
	CloseDelay      uint16
	IOType          byte
	Reserved1       byte
	Hub6            int32
	ClosingWait     uint16
	ClosingWait2    uint16
	IomemBase       uint64
	IomemRegShift   uint16
	_               [2]byte
	PortHigh        uint32
	IomapBase       uint64
	Reserved        [1]int32
}

// triggerLine is the DTR-only serial line: a raw 8N1 device whose only
// purpose is to let the caller assert and clear the DTR modem-control
// bit as a low-latency fire trigger.
type triggerLine struct {
	fd int
}

func openTrigger(dev string) (*triggerLine, error) {
	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	t := &triggerLine{fd: fd}
	if err := t.configureRaw(); err != nil {
		unix.Close(fd)
		return nil, &ConnectionError{Err: err}
	}
	return t, nil
}

func (t *triggerLine) configureRaw() error {
	tio, err := unix.IoctlGetTermios(t.fd, unix.TCGETS)
	if err != nil {
		return err
	}
	tio.Cflag &^= unix.PARENB
	tio.Cflag &^= unix.CSTOPB
	tio.Cflag |= unix.CS8
	tio.Cflag &^= unix.CRTSCTS
	tio.Cflag |= unix.CREAD | unix.CLOCAL

	tio.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHONL | unix.ISIG
	tio.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL
	tio.Oflag &^= unix.OPOST | unix.ONLCR

	tio.Cc[unix.VMIN] = 0
	tio.Cc[unix.VTIME] = 0

	tio.Ispeed = unix.B38400
	tio.Ospeed = unix.B38400

	if err := unix.IoctlSetTermios(t.fd, unix.TCSETS, tio); err != nil {
		return err
	}

	// Low latency is a best-effort nicety; not all serial drivers
	// support TIOCGSERIAL/TIOCSSERIAL, so failures here are ignored.
	var s serialStruct
	if err := ioctlStruct(t.fd, unix.TIOCGSERIAL, &s); err == nil {
		s.Flags |= lowLatencyFlag
		ioctlStruct(t.fd, unix.TIOCSSERIAL, &s)
	}
	return nil
}

// SetDTR asserts (on=true) or clears (on=false) the DTR modem-control
// bit.
func (t *triggerLine) SetDTR(on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	return unix.IoctlSetInt(t.fd, req, unix.TIOCM_DTR)
}

func (t *triggerLine) Close() error {
	if t.fd < 0 {
		return nil
	}
	fd := t.fd
	t.fd = -1
	return unix.Close(fd)
}
