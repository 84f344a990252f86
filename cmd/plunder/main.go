// command plunder drives a short self-test workload under reduced
// core voltage, either by sweeping the MSR voltage plane or by firing
// an external glitch microcontroller.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/Oscar-Rosenwald/plundervolt"
)

var (
	hardware      = flag.Bool("hardware", false, "use the hardware glitch path instead of the MSR sweep")
	teensyDev     = flag.String("teensy", "", "serial device path to the glitch microcontroller")
	triggerDev    = flag.String("trigger", "", "serial device path of the DTR trigger line")
	startOffsetMV = flag.Int64("start", -50, "software sweep start offset, in mV")
	endOffsetMV   = flag.Int64("end", -150, "software sweep end offset, in mV")
	stepMV        = flag.Int64("step", 1, "software sweep step, in mV")
	waitMS        = flag.Int("wait", 300, "wait between sweep steps or try-loop iterations, in ms")
	workers       = flag.Int("workers", 1, "number of workload worker goroutines (software mode)")
	tries         = flag.Int("tries", 100, "hardware try-loop iteration count")
)

// workloadStart is when the process started; faultyWorkload measures
// its total running time from here rather than per call.
var workloadStart = time.Now()

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	spec := plundervolt.InitDefaults()
	spec.Workers = *workers
	spec.WaitMS = *waitMS
	spec.Workload = faultyWorkload
	spec.IntegratedStop = true

	if *hardware {
		if *teensyDev == "" || *triggerDev == "" {
			return errors.New("-hardware requires both -teensy and -trigger")
		}
		spec.Mode = plundervolt.Hardware
		spec.Hardware.TeensyDevice = *teensyDev
		spec.Hardware.TriggerDevice = *triggerDev
		spec.Hardware.Tries = *tries
	} else {
		spec.Software.StartOffsetMV = *startOffsetMV
		spec.Software.EndOffsetMV = *endOffsetMV
		spec.Software.StepMV = *stepMV
	}

	e := plundervolt.NewEngine()
	if err := e.SetSpec(spec); err != nil {
		return fmt.Errorf("invalid specification: %w", err)
	}
	defer e.Cleanup()

	start := time.Now()
	if err := e.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	log.Printf("run finished after %s, final offset %dmV", time.Since(start), e.ReadCurrentOffsetMV())
	return nil
}

// faultyWorkload computes a value whose correctness a real campaign
// would check against a golden result; here it just burns cycles and
// stops itself once it has run long enough to observe a fault.
func faultyWorkload(e *plundervolt.Engine, arg any) {
	deadline, _ := arg.(time.Duration)
	if deadline == 0 {
		deadline = 2 * time.Second
	}
	start := workloadStart
	acc := rand.Uint64()
	for i := 0; i < 1<<20; i++ {
		acc = acc*2654435761 + uint64(i)
	}
	_ = acc
	if time.Since(start) > deadline {
		e.SignalStop()
	}
}
