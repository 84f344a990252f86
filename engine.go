package plundervolt

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Oscar-Rosenwald/plundervolt/internal/glitch"
	"github.com/Oscar-Rosenwald/plundervolt/internal/msr"
)

// Engine is the orchestrator: it owns the shared run state for the
// lifetime of one Run call and the published handle workloads use to
// observe and drive that run. The zero value is an Engine with no
// specification installed, the same as NewEngine returns.
type Engine struct {
	mu   sync.Mutex
	spec Specification
	hasSpec bool

	terminated      atomic.Bool
	currentOffsetMV atomic.Int64

	msrDev    *msr.Device
	glitchDrv *glitch.Driver
}

// NewEngine returns an Engine with no specification installed; Run
// will fail with ErrNotInitialised until SetSpec succeeds.
func NewEngine() *Engine {
	return &Engine{}
}

// SetSpec validates s and, on success, installs it as the
// specification the next Run call will execute. s is copied; mutating
// the caller's copy afterwards has no effect (and, per the data
// model, mutating an already-installed Specification requires
// re-validating).
func (e *Engine) SetSpec(s Specification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := Validate(&s); err != nil {
		return err
	}
	e.spec = s
	e.hasSpec = true
	return nil
}

// SignalStop asserts the termination flag. Once set it remains set
// for the rest of the run; workers, the sweeper and the hardware try
// loop all observe it within one loop iteration.
func (e *Engine) SignalStop() {
	e.terminated.Store(true)
}

// IsStopped reports whether the termination flag is set.
func (e *Engine) IsStopped() bool {
	return e.terminated.Load()
}

// ReadCurrentOffsetMV returns the last offset published by the
// sweeper, or 0 if the sweeper has not published an offset since the
// current (or most recent) Run began; every Run resets it to 0.
func (e *Engine) ReadCurrentOffsetMV() int64 {
	return e.currentOffsetMV.Load()
}

// ReadVoltageV reads the live core voltage from the MSR. It is only
// meaningful in software mode with a run in flight or just completed.
// Outside a run it opens the MSR node just for this one read.
func (e *Engine) ReadVoltageV() (float64, error) {
	if e.msrDev != nil {
		return e.msrDev.ReadVoltage()
	}
	dev, err := msr.Open(msr.DevicePath)
	if err != nil {
		return 0, ErrMsrInaccessible
	}
	defer dev.Close()
	return dev.ReadVoltage()
}

// FireGlitch triggers the hardware glitch. It is only valid in
// hardware mode, called by the workload at the moment it chooses.
func (e *Engine) FireGlitch() error {
	if e.glitchDrv == nil {
		return newError(Generic, errGlitchNotActive)
	}
	if err := e.glitchDrv.Fire(); err != nil {
		return mapGlitchErr(err)
	}
	return nil
}

// ResetVoltage restores nominal voltage. In software mode this zeroes
// both MSR planes and settles; in hardware mode it releases the DTR
// trigger (or is a no-op when firmware auto-resets).
func (e *Engine) ResetVoltage() error {
	switch e.spec.Mode {
	case Software:
		if e.msrDev == nil {
			return nil
		}
		if err := e.msrDev.Reset(voltageSettleDuration); err != nil {
			return newError(Generic, err)
		}
		return nil
	case Hardware:
		if e.glitchDrv == nil {
			return nil
		}
		if err := e.glitchDrv.Reset(); err != nil {
			return mapGlitchErr(err)
		}
	}
	return nil
}

// ConfigureGlitch sends the pre-glitch delay and the glitch
// specification line to the microcontroller. It is exposed for
// workloads that drive their own try loop instead of relying on Run's
// built-in one.
func (e *Engine) ConfigureGlitch() error {
	if e.glitchDrv == nil {
		return newError(Generic, errGlitchNotActive)
	}
	if err := e.glitchDrv.Configure(e.spec.Hardware.PreGlitchDelayMS, hardwareConfigureParams(&e.spec)); err != nil {
		return mapGlitchErr(err)
	}
	return nil
}

// ArmGlitch arms the microcontroller to fire on the next trigger.
func (e *Engine) ArmGlitch() error {
	if e.glitchDrv == nil {
		return newError(Generic, errGlitchNotActive)
	}
	if err := e.glitchDrv.Arm(); err != nil {
		return mapGlitchErr(err)
	}
	return nil
}

// Cleanup releases device handles and, in software mode with sweeping
// enabled, restores nominal voltage. Cleanup is idempotent and safe
// to call after any outcome, including one where Run was never
// called.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanupLocked()
}

func hardwareConfigureParams(spec *Specification) glitch.ConfigureParams {
	hw := spec.Hardware
	return glitch.ConfigureParams{
		Repeat:     hw.RepeatPerGlitch,
		VStart:     hw.VStart,
		HoldStart:  hw.HoldStartTicks,
		VGlitch:    hw.VGlitch,
		HoldDuring: hw.HoldDuringTicks,
		VEnd:       hw.VEnd,
	}
}

func mapGlitchErr(err error) error {
	var we *glitch.WriteError
	if errors.As(err, &we) {
		return newError(TeensyWriteFailed, err)
	}
	var ce *glitch.ConnectionError
	if errors.As(err, &ce) {
		return newError(HardwareInitFailed, err)
	}
	return newError(Generic, err)
}
