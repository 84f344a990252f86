package plundervolt

import "time"

// Mode selects which physical path undervolts the CPU.
type Mode int

const (
	// Software sweeps the core's MSR voltage-plane offset directly.
	Software Mode = iota
	// Hardware drives an external microcontroller over serial to
	// glitch the supply rail.
	Hardware
)

// LoopKind selects how many times each software-mode worker runs the
// workload per Run call. The hardware try loop does not consult it: it
// runs the workload once per try.
type LoopKind int

const (
	// Once runs the workload exactly once.
	Once LoopKind = iota
	// RepeatUntilStopped runs the workload until the termination
	// flag is set, by the workload itself, a stop predicate, or the
	// sweeper completing its descent.
	RepeatUntilStopped
	// RepeatN runs the workload a fixed number of times.
	RepeatN
)

// Workload is the user-supplied callable executed under reduced
// voltage. arg is whatever WorkloadArg the Specification carries,
// passed through untouched. e is the running Engine, the workload's
// only handle onto SignalStop, ReadCurrentOffsetMV, FireGlitch and
// ResetVoltage — it must never reach for a device directly.
type Workload func(e *Engine, arg any)

// StopPredicate is polled once per loop iteration when LoopMode is
// RepeatUntilStopped and IntegratedStop is false. A true return asserts
// the termination flag and ends the loop. RepeatN loops never poll it.
type StopPredicate func(arg any) bool

// SoftwareSpec configures the software undervolting path: an MSR
// offset sweep from StartOffsetMV down to EndOffsetMV.
type SoftwareSpec struct {
	// StartOffsetMV is the initial undervolt offset, in millivolts.
	// Negative values reduce voltage.
	StartOffsetMV int64
	// EndOffsetMV is the sweep's target offset; when sweeping it must
	// be strictly less than StartOffsetMV.
	EndOffsetMV int64
	// StepMV is the positive decrement applied every WaitMS.
	StepMV int64
}

// HardwareSpec configures the hardware glitch path.
type HardwareSpec struct {
	// TeensyDevice is the serial device path to the glitch
	// microcontroller.
	TeensyDevice string
	// TriggerDevice is the serial device path whose DTR line fires
	// the glitch.
	TriggerDevice string
	// Baud is the Teensy line's baud rate.
	Baud int
	// UseDTR selects the fire mechanism: DTR modem-control bit when
	// true, an in-band byte on the Teensy line when false.
	UseDTR bool
	// RepeatPerGlitch is a firmware-side replay count sent in the
	// configure line; it is not re-interpreted by the engine.
	RepeatPerGlitch int
	// PreGlitchDelayMS is sent to the microcontroller as "delay <n>".
	PreGlitchDelayMS int
	// HoldStartTicks and HoldDuringTicks are passed through verbatim
	// to the firmware; HoldDuringTicks may be negative.
	HoldStartTicks  int
	HoldDuringTicks int
	// VStart, VGlitch, VEnd are the three voltage levels, in volts.
	VStart, VGlitch, VEnd float64
	// Tries is the outer iteration count of the try loop.
	Tries int
}

// Specification is the full configuration of one Run. It is mutable
// until Run begins, frozen for the duration of Run, and may be
// replaced between runs.
type Specification struct {
	Mode Mode

	Workload    Workload
	WorkloadArg any

	// Workers is the worker thread count; clamped to >= 1.
	Workers int

	LoopMode      LoopKind
	RepeatCount   int
	StopPredicate StopPredicate
	StopArg       any
	// IntegratedStop means the workload itself signals termination
	// via SignalStop; when false the engine polls StopPredicate.
	IntegratedStop bool

	// WaitMS is the pause between sweep steps (software) or between
	// configure/arm and the try boundary (hardware).
	WaitMS int
	// PerformSweep enables the voltage-changing activity
	// independently of workload execution.
	PerformSweep bool

	Software SoftwareSpec
	Hardware HardwareSpec

	initialised bool
}

// InitDefaults returns a Specification populated with defaults: one
// worker, a repeating loop, sweeping enabled, a 300ms wait between
// steps, a 1mV sweep step, and the hardware defaults tabulated
// alongside it.
func InitDefaults() Specification {
	return Specification{
		Mode:           Software,
		Workers:        1,
		LoopMode:       RepeatUntilStopped,
		IntegratedStop: false,
		WaitMS:         300,
		PerformSweep:   true,
		Software: SoftwareSpec{
			StepMV: 1,
		},
		Hardware: HardwareSpec{
			Baud:            115200,
			UseDTR:          true,
			RepeatPerGlitch: 1,
			HoldStartTicks:  35,
			HoldDuringTicks: -25,
			VStart:          0.900,
			VGlitch:         0.900,
			VEnd:            0.900,
			Tries:           1,
		},
		initialised: true,
	}
}

// waitDuration converts WaitMS to a time.Duration.
func (s *Specification) waitDuration() time.Duration {
	return time.Duration(s.WaitMS) * time.Millisecond
}

// Validate checks every precondition from the data model before any
// I/O happens. Validate is pure: it performs no device access.
func Validate(s *Specification) error {
	if !s.initialised {
		return ErrNotInitialised
	}
	if s.Workload == nil {
		return ErrNoWorkload
	}
	if s.Mode == Software && s.PerformSweep && s.Software.StartOffsetMV <= s.Software.EndOffsetMV {
		return ErrRangeInvalid
	}
	if s.LoopMode != Once && !s.IntegratedStop && s.StopPredicate == nil {
		return ErrNoStopPredicate
	}
	if s.Mode == Hardware {
		if s.Hardware.TeensyDevice == "" {
			return ErrNoTeensyPath
		}
		if s.Hardware.TriggerDevice == "" {
			return ErrNoTriggerPath
		}
	}
	return nil
}

// workerCount returns the configured worker count, clamped to >= 1.
func (s *Specification) workerCount() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}
