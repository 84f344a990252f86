package glitch

import (
	"testing"
)

func TestDelayLineFormat(t *testing.T) {
	got := delayLine(200)
	want := "delay 200\n"
	if got != want {
		t.Fatalf("delayLine(200) = %q, want %q", got, want)
	}
}

func TestConfigureLineFormat(t *testing.T) {
	p := ConfigureParams{
		Repeat:     2,
		VStart:     1.05,
		HoldStart:  35,
		VGlitch:    0.815,
		HoldDuring: -30,
		VEnd:       1.05,
	}
	got := configureLine(p)
	want := "2 1.0500 35 0.8150 -30 1.0500\n"
	if got != want {
		t.Fatalf("configureLine(%+v) = %q, want %q", p, got, want)
	}
}

func TestConfigureArmSequence(t *testing.T) {
	sim := NewSimulator()
	trig := &FakeTrigger{}
	d := New(sim, trig, true)

	if err := d.Configure(200, ConfigureParams{2, 1.05, 35, 0.815, -30, 1.05}); err != nil {
		t.Fatal(err)
	}
	if err := d.Arm(); err != nil {
		t.Fatal(err)
	}

	lines := sim.Lines()
	want := []string{"delay 200\n", "2 1.0500 35 0.8150 -30 1.0500\n", "arm\n"}
	if len(lines) != len(want) {
		t.Fatalf("wrote %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i, l := range want {
		if lines[i] != l {
			t.Fatalf("line %d = %q, want %q", i, lines[i], l)
		}
	}
}

func TestFireAndResetWithDTR(t *testing.T) {
	sim := NewSimulator()
	trig := &FakeTrigger{}
	d := New(sim, trig, true)

	if err := d.Fire(); err != nil {
		t.Fatal(err)
	}
	if !trig.Asserted() {
		t.Fatal("DTR not asserted after Fire")
	}
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	if trig.Asserted() {
		t.Fatal("DTR still asserted after Reset")
	}
}

func TestFireWithoutDTRWritesInBand(t *testing.T) {
	sim := NewSimulator()
	d := New(sim, nil, false)

	if err := d.Fire(); err != nil {
		t.Fatal(err)
	}
	lines := sim.Lines()
	if len(lines) != 1 || lines[0] != "\n" {
		t.Fatalf("lines = %q, want a single newline byte", lines)
	}
	// Without DTR, Reset is a no-op relying on firmware auto-reset.
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
}

func TestCloseClosesTrigger(t *testing.T) {
	sim := NewSimulator()
	trig := &FakeTrigger{}
	d := New(sim, trig, true)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !trig.Closed() {
		t.Fatal("trigger not closed")
	}
}
