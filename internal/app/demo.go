package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/measure"
	"github.com/relabs-tech/torsion_stand/internal/session"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// DemoOptions shape a headless demo run. Zero values pick defaults that
// drive the simulated specimen into its torque limit within seconds.
type DemoOptions struct {
	SampleName string
	Duration   time.Duration // 0 runs until a stop condition fires
	Velocity   float64       // deg/s, signed
	MaxAngle   float64       // deg
	MaxTorque  float64       // Nm
}

// demoListener prints the run to stdout and reports the end of the session.
type demoListener struct {
	done chan measure.StopReason
}

func (l *demoListener) PhaseChanged(p session.Phase) {
	log.Printf("demo: phase %s", p)
}

func (l *demoListener) HardwareChanged(c hw.Capability, s hw.Status) {
	log.Printf("demo: %s %s", c, s)
}

func (l *demoListener) SampleRecorded(s measure.Sample) {
	fmt.Printf(
		"[DATA]  t=%8.1fs  U=%8.4fV  M=%8.3fNm  angle=%9.3f°  turns=%d\n",
		s.ElapsedS, s.TorqueVolts, s.TorqueNm, s.AngleDeg, s.Turns,
	)
}

func (l *demoListener) SessionEnded(reason measure.StopReason) {
	select {
	case l.done <- reason:
	default:
	}
}

// RunDemo runs one scripted measurement against the simulator and prints
// every sample. It always uses the simulator, whatever HARDWARE says, so it
// is safe to run on a machine with nothing attached.
func RunDemo(opts DemoOptions) error {
	cfg := config.Get()

	if opts.SampleName == "" {
		opts.SampleName = "demo"
	}
	if opts.Velocity == 0 {
		opts.Velocity = 45
	}
	if opts.MaxAngle == 0 {
		opts.MaxAngle = 720
	}
	if opts.MaxTorque == 0 {
		opts.MaxTorque = 15
	}

	ctrl := session.New(newSim(cfg), cfg.ProjectDir)
	ctrl.SetUnwrapDeadband(cfg.UnwrapDeadband)
	listener := &demoListener{done: make(chan measure.StopReason, 1)}
	ctrl.SetListener(listener)

	if err := ctrl.Activate(); err != nil {
		return err
	}
	defer ctrl.Deactivate()

	if err := ctrl.Calibrate(); err != nil {
		return err
	}

	runCfg := session.Config{
		SampleName:  opts.SampleName,
		MaxAngle:    opts.MaxAngle,
		MaxTorque:   opts.MaxTorque,
		MaxVelocity: opts.Velocity,
		Interval:    time.Duration(cfg.DefaultIntervalMS) * time.Millisecond,
		EncoderMode: angle.SingleTurn,
		AngleSource: measure.AngleFromAnalog,
		TorqueScale: cfg.TorqueScale,
		AngleSpan: units.AngleSpan{
			MinVolts: cfg.AngleVMin,
			MaxVolts: cfg.AngleVMax,
			MinDeg:   cfg.AngleDegMin,
			MaxDeg:   cfg.AngleDegMax,
		},
	}
	if err := ctrl.Start(runCfg); err != nil {
		return err
	}
	log.Printf("demo: recording to %s", ctrl.Snapshot().RecordPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reason := <-listener.done:
		log.Printf("demo: session ended (%s)", reason)
	case <-timeout:
		log.Printf("demo: duration elapsed, stopping")
		if err := ctrl.Stop(); err != nil {
			log.Printf("demo: stop: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("demo: received %v, stopping", sig)
		if err := ctrl.Stop(); err != nil {
			log.Printf("demo: stop: %v", err)
		}
	}

	fmt.Printf("record written to %s\n", ctrl.Snapshot().RecordPath)
	return nil
}
