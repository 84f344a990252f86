package plundervolt

import (
	"errors"
	"testing"
)

func dummyWorkload(e *Engine, arg any) {}

func TestValidateRejectsZeroValue(t *testing.T) {
	var s Specification
	if err := Validate(&s); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("Validate(zero value) = %v, want ErrNotInitialised", err)
	}
}

func TestValidateRejectsNoWorkload(t *testing.T) {
	s := InitDefaults()
	if err := Validate(&s); !errors.Is(err, ErrNoWorkload) {
		t.Fatalf("Validate(no workload) = %v, want ErrNoWorkload", err)
	}
}

func TestValidateRejectsBackwardsSweep(t *testing.T) {
	s := InitDefaults()
	s.Workload = dummyWorkload
	s.IntegratedStop = true
	s.Software.StartOffsetMV = -100
	s.Software.EndOffsetMV = -50
	if err := Validate(&s); !errors.Is(err, ErrRangeInvalid) {
		t.Fatalf("Validate(backwards sweep) = %v, want ErrRangeInvalid", err)
	}
}

func TestValidateAcceptsEqualBoundsAsInvalid(t *testing.T) {
	s := InitDefaults()
	s.Workload = dummyWorkload
	s.IntegratedStop = true
	s.Software.StartOffsetMV = -100
	s.Software.EndOffsetMV = -100
	if err := Validate(&s); !errors.Is(err, ErrRangeInvalid) {
		t.Fatalf("Validate(start == end) = %v, want ErrRangeInvalid", err)
	}
}

func TestValidateRejectsMissingStopPredicate(t *testing.T) {
	s := InitDefaults()
	s.Workload = dummyWorkload
	s.PerformSweep = false
	if err := Validate(&s); !errors.Is(err, ErrNoStopPredicate) {
		t.Fatalf("Validate(no stop predicate) = %v, want ErrNoStopPredicate", err)
	}
}

func TestValidateAcceptsOnceLoopWithoutStopPredicate(t *testing.T) {
	s := InitDefaults()
	s.Workload = dummyWorkload
	s.LoopMode = Once
	s.PerformSweep = false
	if err := Validate(&s); err != nil {
		t.Fatalf("Validate(Once loop) = %v, want nil", err)
	}
}

func TestValidateRejectsMissingHardwarePaths(t *testing.T) {
	s := InitDefaults()
	s.Workload = dummyWorkload
	s.Mode = Hardware
	s.LoopMode = Once
	if err := Validate(&s); !errors.Is(err, ErrNoTeensyPath) {
		t.Fatalf("Validate(no teensy path) = %v, want ErrNoTeensyPath", err)
	}
	s.Hardware.TeensyDevice = "/dev/ttyACM0"
	if err := Validate(&s); !errors.Is(err, ErrNoTriggerPath) {
		t.Fatalf("Validate(no trigger path) = %v, want ErrNoTriggerPath", err)
	}
	s.Hardware.TriggerDevice = "/dev/ttyACM1"
	if err := Validate(&s); err != nil {
		t.Fatalf("Validate(complete hardware spec) = %v, want nil", err)
	}
}

func TestWorkerCountClampsToOne(t *testing.T) {
	s := InitDefaults()
	s.Workers = 0
	if got := s.workerCount(); got != 1 {
		t.Fatalf("workerCount() = %d, want 1", got)
	}
	s.Workers = -5
	if got := s.workerCount(); got != 1 {
		t.Fatalf("workerCount() = %d, want 1", got)
	}
	s.Workers = 4
	if got := s.workerCount(); got != 4 {
		t.Fatalf("workerCount() = %d, want 4", got)
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	wrapped := newError(RangeInvalid, errors.New("start -50 end -10"))
	if !errors.Is(wrapped, ErrRangeInvalid) {
		t.Fatalf("errors.Is(wrapped, ErrRangeInvalid) = false, want true")
	}
	if errors.Is(wrapped, ErrNoWorkload) {
		t.Fatalf("errors.Is(wrapped, ErrNoWorkload) = true, want false")
	}
}

func TestErrorMessageUnknownKindFallsBackToGeneric(t *testing.T) {
	if got, want := ErrorMessage(Kind(999)), messages[Generic]; got != want {
		t.Fatalf("ErrorMessage(999) = %q, want %q", got, want)
	}
}
