// Package glitch implements the hardware fault-injection path: the
// line protocol to an external glitch microcontroller (the "Teensy")
// and the DTR-only trigger line used to fire it.
package glitch

import (
	"bufio"
	"io"
	"time"
)

// DTRController is the trigger line's capability: asserting or
// clearing a single modem-control bit. The real implementation talks
// to a termios-configured serial device; tests substitute a fake.
type DTRController interface {
	SetDTR(on bool) error
	Close() error
}

// Driver owns the two serial lines used by the hardware path.
type Driver struct {
	teensy  io.ReadWriteCloser
	teensyR *bufio.Reader
	trigger DTRController
	useDTR  bool
}

// New builds a Driver from an already-open Teensy transport and an
// optional DTR controller, for tests that substitute fakes for both.
func New(teensy io.ReadWriteCloser, trigger DTRController, useDTR bool) *Driver {
	return &Driver{
		teensy:  teensy,
		teensyR: bufio.NewReader(teensy),
		trigger: trigger,
		useDTR:  useDTR,
	}
}

// Open opens the Teensy line unconditionally, and the trigger line
// only when useDTR is set, mirroring the original driver: without DTR
// the fire command travels in-band over the Teensy line instead.
func Open(teensyDev, triggerDev string, baud int, useDTR bool, readTimeout time.Duration) (*Driver, error) {
	teensy, err := openTeensy(teensyDev, baud, readTimeout)
	if err != nil {
		return nil, err
	}
	var trig DTRController
	if useDTR {
		trig, err = openTrigger(triggerDev)
		if err != nil {
			teensy.Close()
			return nil, err
		}
	}
	return New(teensy, trig, useDTR), nil
}

// Configure sends the pre-glitch delay and the glitch specification
// line, draining the microcontroller's acknowledgements after each.
func (d *Driver) Configure(delayMS int, p ConfigureParams) error {
	if err := writeLine(d.teensy, delayLine(delayMS)); err != nil {
		return err
	}
	drainAckLines(d.teensyR, 2)

	if err := writeLine(d.teensy, configureLine(p)); err != nil {
		return err
	}
	drainAckLines(d.teensyR, 3)
	return nil
}

// Arm tells the microcontroller to get ready to glitch.
func (d *Driver) Arm() error {
	if err := writeLine(d.teensy, "arm\n"); err != nil {
		return err
	}
	drainAckLines(d.teensyR, 2)
	return nil
}

// Fire triggers the glitch: asserting DTR if configured to use it,
// otherwise sending the in-band fire byte over the Teensy line.
func (d *Driver) Fire() error {
	if d.useDTR {
		return d.trigger.SetDTR(true)
	}
	return writeLine(d.teensy, "\n")
}

// Reset releases the fire trigger: clearing DTR if configured to use
// it, otherwise a no-op (the firmware auto-resets at glitch end).
func (d *Driver) Reset() error {
	if d.useDTR {
		return d.trigger.SetDTR(false)
	}
	return nil
}

// Close releases both serial lines. Close is safe to call once; the
// caller must not reuse the Driver afterwards.
func (d *Driver) Close() error {
	err := d.teensy.Close()
	if d.trigger != nil {
		if terr := d.trigger.Close(); err == nil {
			err = terr
		}
	}
	return err
}
