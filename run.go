package plundervolt

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/Oscar-Rosenwald/plundervolt/internal/glitch"
	"github.com/Oscar-Rosenwald/plundervolt/internal/msr"
	"golang.org/x/sys/unix"
)

// voltageSettleDuration is how long Reset waits after zeroing the MSR
// offset before the caller can trust the rail has settled.
const voltageSettleDuration = 3 * time.Second

// teensyReadTimeout bounds how long a Teensy read blocks waiting for
// an acknowledgement line.
const teensyReadTimeout = 500 * time.Millisecond

var errGlitchNotActive = errors.New("hardware driver not open for this run")

// errSlot holds the first non-nil error reported by any goroutine of
// a run; later errors are dropped.
type errSlot struct {
	mu  sync.Mutex
	err error
}

func (s *errSlot) setIfEmpty(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *errSlot) get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run executes the installed specification to completion: it opens
// the device(s) the mode requires, validates, spawns the workers and
// (software mode) the sweeper or (hardware mode) runs the try loop on
// the calling goroutine, and always cleans up before returning.
//
// Exactly one Run may be in flight on a given Engine; concurrent
// callers block on the run mutex rather than being rejected.
func (e *Engine) Run() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasSpec {
		return ErrNotInitialised
	}
	spec := e.spec

	if err := e.openDevices(&spec); err != nil {
		return err
	}
	defer e.cleanupLocked()

	return e.runLocked(&spec)
}

// runLocked validates spec and executes it, assuming any device
// handles spec.Mode needs are already installed. Factored out of Run
// so tests can exercise the concurrency and loop semantics against
// injected fakes without opening real devices.
func (e *Engine) runLocked(spec *Specification) error {
	if err := Validate(spec); err != nil {
		return err
	}

	e.terminated.Store(false)
	e.currentOffsetMV.Store(0)

	errs := &errSlot{}
	switch spec.Mode {
	case Software:
		e.runSoftware(spec, errs)
	case Hardware:
		e.runHardware(spec, errs)
	}

	return errs.get()
}

// openDevices opens the device(s) spec.Mode requires. No goroutines
// are spawned here; a failure leaves no handle installed.
func (e *Engine) openDevices(spec *Specification) error {
	switch spec.Mode {
	case Software:
		dev, err := msr.Open(msr.DevicePath)
		if err != nil {
			return ErrMsrInaccessible
		}
		e.msrDev = dev
	case Hardware:
		drv, err := glitch.Open(spec.Hardware.TeensyDevice, spec.Hardware.TriggerDevice, spec.Hardware.Baud, spec.Hardware.UseDTR, teensyReadTimeout)
		if err != nil {
			return newError(HardwareInitFailed, err)
		}
		e.glitchDrv = drv
	}
	return nil
}

// cleanupLocked releases whatever device handle is installed. Called
// with e.mu held, either deferred from Run or via the public Cleanup.
func (e *Engine) cleanupLocked() {
	if e.msrDev != nil {
		if e.spec.PerformSweep {
			e.msrDev.Reset(voltageSettleDuration)
		}
		e.msrDev.Close()
		e.msrDev = nil
	}
	if e.glitchDrv != nil {
		e.glitchDrv.Close()
		e.glitchDrv = nil
	}
}

// runSoftware spawns the workload workers and, if enabled, the
// sweeper, and waits for both to finish. The sweeper asserting the
// termination flag on exit is what eventually stops
// RepeatUntilStopped workers when no stop predicate has fired first.
func (e *Engine) runSoftware(spec *Specification, errs *errSlot) {
	var workers sync.WaitGroup
	workers.Add(spec.workerCount())
	for i := 0; i < spec.workerCount(); i++ {
		go func() {
			defer workers.Done()
			e.runLoopBody(spec)
		}()
	}

	var sweeper sync.WaitGroup
	if spec.PerformSweep {
		sweeper.Add(1)
		go func() {
			defer sweeper.Done()
			e.sweep(spec, errs)
		}()
	}

	sweeper.Wait()
	workers.Wait()
}

// runLoopBody runs the workload according to LoopMode, on whatever
// goroutine calls it (a worker in software mode, the caller in
// hardware mode is handled separately by runHardware).
func (e *Engine) runLoopBody(spec *Specification) {
	switch spec.LoopMode {
	case Once:
		spec.Workload(e, spec.WorkloadArg)
	case RepeatN:
		for i := 0; i < spec.RepeatCount; i++ {
			spec.Workload(e, spec.WorkloadArg)
		}
	case RepeatUntilStopped:
		for {
			if e.IsStopped() {
				return
			}
			if !spec.IntegratedStop && spec.StopPredicate != nil && spec.StopPredicate(spec.StopArg) {
				e.SignalStop()
				return
			}
			spec.Workload(e, spec.WorkloadArg)
		}
	}
}

// sweep drives the software undervolting descent: publish the current
// offset, apply it to both voltage planes, wait, step down. It runs
// pinned to CPU 0, matching the core the MSR writes target, and
// always leaves the termination flag set on exit.
func (e *Engine) sweep(spec *Specification, errs *errSlot) {
	defer e.SignalStop()

	if err := pinCurrentThreadToCPU0(); err != nil {
		errs.setIfEmpty(newError(Generic, err))
		return
	}

	cur := spec.Software.StartOffsetMV
	for cur >= spec.Software.EndOffsetMV && !e.IsStopped() {
		e.currentOffsetMV.Store(cur)
		if err := e.msrDev.ApplyOffset(cur); err != nil {
			errs.setIfEmpty(newError(Generic, err))
			return
		}
		time.Sleep(spec.waitDuration())
		cur -= spec.Software.StepMV
	}
}

// runHardware drives the hardware try loop on the calling goroutine:
// no worker threads are spawned, so the workload runs interleaved
// with configure/arm/fire exactly as the single caller schedules it.
func (e *Engine) runHardware(spec *Specification, errs *errSlot) {
	defer e.SignalStop()

	if err := e.glitchDrv.Reset(); err != nil {
		errs.setIfEmpty(mapGlitchErr(err))
		return
	}
	if err := e.glitchDrv.Fire(); err != nil {
		errs.setIfEmpty(mapGlitchErr(err))
		return
	}
	if err := e.glitchDrv.Reset(); err != nil {
		errs.setIfEmpty(mapGlitchErr(err))
		return
	}

	for i := 0; i < spec.Hardware.Tries && !e.IsStopped(); i++ {
		if err := e.glitchDrv.Configure(spec.Hardware.PreGlitchDelayMS, hardwareConfigureParams(spec)); err != nil {
			errs.setIfEmpty(mapGlitchErr(err))
			return
		}
		if err := e.glitchDrv.Arm(); err != nil {
			errs.setIfEmpty(mapGlitchErr(err))
			return
		}
		time.Sleep(spec.waitDuration())
		spec.Workload(e, spec.WorkloadArg)
		time.Sleep(spec.waitDuration())
	}
}

// pinCurrentThreadToCPU0 locks the calling goroutine to its current
// OS thread and restricts that thread's affinity to CPU 0, so the
// sweeper always shares a core with whichever thread the MSR writes
// are meant to apply to.
func pinCurrentThreadToCPU0() error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(0)
	return unix.SchedSetaffinity(0, &set)
}
