// Package msr implements the software undervolting path: encoding a
// millivolt offset into the voltage-plane control word and applying
// it through positional reads and writes on the per-core MSR device
// node.
package msr

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Device paths and register offsets used by the core undervolting MSR.
const (
	// DevicePath is the per-core MSR character device exposing the
	// voltage-plane control registers. It requires the "msr" kernel
	// module to be loaded and the caller to run with sufficient
	// privilege.
	DevicePath = "/dev/cpu/0/msr"

	// planeIndexOffset is where a 64-bit plane-select command word is
	// written to change a plane's voltage offset.
	planeIndexOffset = 0x150
	// voltageOffset is where the current voltage readout is found.
	voltageOffset = 0x198
)

// Plane identifies a voltage domain on the control word.
type Plane uint64

const (
	// PlaneCore is the CPU core voltage plane.
	PlaneCore Plane = 0
	// PlaneCache is the CPU cache (uncore) voltage plane.
	PlaneCache Plane = 2
)

const (
	planeCommandBase = 0x8000001100000000
	offsetFieldMask  = 0xFFE00000
	offsetFieldShift = 21
	readoutMask      = 0xFFFF00000000
	readoutShift     = 32
	voltsPerUnit     = 8192.0
)

// EncodeOffset packs a signed millivolt offset and a plane selector into
// the 64-bit command word the MSR expects at planeIndexOffset.
//
// The offset is scaled by a hardware constant and rounded toward zero
// (matching the original driver's C integer-truncation semantics, not
// a mathematical floor: a zero offset sets no offset bits, so
// EncodeOffset(0, PlaneCore) is exactly the base command pattern).
func EncodeOffset(offsetMV int64, plane Plane) uint64 {
	scaled := int64(float64(offsetMV)*1.024 - 0.5)
	word := uint64(scaled&0xFFF) << offsetFieldShift
	word &= offsetFieldMask
	word |= planeCommandBase
	word |= uint64(plane) << 40
	return word
}

// Device is an open handle to the per-core MSR node.
type Device struct {
	fd int
}

// Open opens the MSR device node for positional read/write.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("msr: open %s: %w", path, err)
	}
	return &Device{fd: fd}, nil
}

// Close releases the MSR handle. Close is idempotent.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	fd := d.fd
	d.fd = -1
	return unix.Close(fd)
}

// ApplyOffset encodes offsetMV for both the core and cache planes and
// writes both command words. Both writes are issued unconditionally;
// a caller that only applies one plane leaves the regulator in an
// inconsistent state.
func (d *Device) ApplyOffset(offsetMV int64) error {
	core := EncodeOffset(offsetMV, PlaneCore)
	cache := EncodeOffset(offsetMV, PlaneCache)
	if err := d.writeWord(core); err != nil {
		return fmt.Errorf("msr: apply core plane: %w", err)
	}
	if err := d.writeWord(cache); err != nil {
		return fmt.Errorf("msr: apply cache plane: %w", err)
	}
	return nil
}

func (d *Device) writeWord(word uint64) error {
	var buf [8]byte
	littleEndianPutUint64(buf[:], word)
	n, err := unix.Pwrite(d.fd, buf[:], planeIndexOffset)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

// ReadVoltage reads the live core voltage, in volts.
func (d *Device) ReadVoltage() (float64, error) {
	var buf [8]byte
	n, err := unix.Pread(d.fd, buf[:], voltageOffset)
	if err != nil {
		return 0, fmt.Errorf("msr: read voltage: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("msr: short read: got %d of %d bytes", n, len(buf))
	}
	word := littleEndianUint64(buf[:])
	raw := (word & readoutMask) >> readoutShift
	return float64(raw) / voltsPerUnit, nil
}

// Reset restores the nominal (zero offset) voltage on both planes and
// sleeps to let the regulator settle before reporting the post-reset
// readout is meaningful. Reset is safe to call multiple times.
func (d *Device) Reset(settle time.Duration) error {
	if err := d.ApplyOffset(0); err != nil {
		return fmt.Errorf("msr: reset: %w", err)
	}
	time.Sleep(settle)
	return nil
}

func littleEndianPutUint64(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

func littleEndianUint64(b []byte) uint64 {
	var v uint64
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return v
}
