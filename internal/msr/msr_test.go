package msr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestEncodeOffsetZero(t *testing.T) {
	got := EncodeOffset(0, PlaneCore)
	want := uint64(planeCommandBase)
	if got != want {
		t.Fatalf("EncodeOffset(0, PlaneCore) = %#x, want %#x", got, want)
	}
}

func TestEncodeOffsetMask(t *testing.T) {
	for offset := int64(-512); offset <= 511; offset++ {
		for _, plane := range []Plane{PlaneCore, PlaneCache} {
			word := EncodeOffset(offset, plane)
			allowed := offsetFieldMask | uint64(0x0000001100000000) | (uint64(plane) << 40) | uint64(0x8000000000000000)
			if word&^allowed != 0 {
				t.Fatalf("EncodeOffset(%d, %d) = %#x sets bits outside %#x", offset, plane, word, allowed)
			}
			if word&planeCommandBase != planeCommandBase {
				t.Fatalf("EncodeOffset(%d, %d) = %#x missing base command pattern", offset, plane, word)
			}
		}
	}
}

func TestEncodeOffsetPlaneBit(t *testing.T) {
	core := EncodeOffset(-100, PlaneCore)
	cache := EncodeOffset(-100, PlaneCache)
	if core>>40&0b1 != 0 {
		t.Fatalf("core plane bit 40 set in %#x", core)
	}
	if cache>>41&0b1 != 1 {
		t.Fatalf("cache plane bit 41 not set in %#x", cache)
	}
}

// openFake opens a regular file standing in for the MSR device node: the
// Device only ever does positional pread/pwrite, which works the same
// against any file descriptor.
func openFake(t *testing.T) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msr")
	if err := os.WriteFile(path, make([]byte, 0x200), 0o600); err != nil {
		t.Fatal(err)
	}
	dev, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestApplyOffsetRoundTrip(t *testing.T) {
	dev := openFake(t)
	if err := dev.ApplyOffset(-100); err != nil {
		t.Fatal(err)
	}
	var buf [8]byte
	if _, err := unix.Pread(dev.fd, buf[:], planeIndexOffset); err != nil {
		t.Fatal(err)
	}
	if got, want := littleEndianUint64(buf[:]), EncodeOffset(-100, PlaneCache); got != want {
		t.Fatalf("plane index word = %#x, want %#x (last write wins, cache plane)", got, want)
	}
}

func TestReadVoltage(t *testing.T) {
	dev := openFake(t)
	var encoded [8]byte
	// Program a readout of exactly raw=8601 counts (8601/8192 volts).
	raw := uint64(8601) << readoutShift
	littleEndianPutUint64(encoded[:], raw&readoutMask)
	if _, err := unix.Pwrite(dev.fd, encoded[:], voltageOffset); err != nil {
		t.Fatal(err)
	}
	v, err := dev.ReadVoltage()
	if err != nil {
		t.Fatal(err)
	}
	want := float64(8601) / voltsPerUnit
	if v != want {
		t.Fatalf("ReadVoltage() = %v, want %v", v, want)
	}
}

func TestResetSettlesAndZeroesOffset(t *testing.T) {
	dev := openFake(t)
	if err := dev.ApplyOffset(-50); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := dev.Reset(5 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("Reset returned before settle time elapsed: %v", elapsed)
	}
	var buf [8]byte
	if _, err := unix.Pread(dev.fd, buf[:], planeIndexOffset); err != nil {
		t.Fatal(err)
	}
	if got, want := littleEndianUint64(buf[:]), EncodeOffset(0, PlaneCache); got != want {
		t.Fatalf("plane index word after Reset = %#x, want %#x (zero offset)", got, want)
	}
}
