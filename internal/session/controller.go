// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/measure"
	"github.com/relabs-tech/torsion_stand/internal/record"
)

// recordSink is what the tick loop needs from the record writer.
type recordSink interface {
	Append(s measure.Sample) error
	Close() error
	Path() string
}

// Controller owns the session state machine, the unwrap state and the open
// record. Every command and every tick runs under one mutex, so ticks are
// never reentrant and a stop issued mid-tick takes effect at the tick
// boundary.
type Controller struct {
	factory    hw.Factory
	projectDir string

	mu       sync.Mutex
	phase    Phase
	listener Listener
	deadband float64

	torque   hw.TorqueSource
	angleSrc hw.AngleSource
	motor    hw.Motor

	torqueStatus hw.Status
	angleStatus  hw.Status
	motorStatus  hw.Status

	tareVolts float64

	// Session-scoped, valid while Running.
	cfg          Config
	unwrapper    *angle.Unwrapper
	assembler    *measure.Assembler
	writer       recordSink
	recordPath   string
	startedAt    time.Time
	lastTorqueV  float64
	lastAngleRaw float64
	latest       measure.Sample
	haveSample   bool
	done         chan struct{}
}

// New builds an idle controller. Measurement folders are created under
// projectDir at session start.
func New(factory hw.Factory, projectDir string) *Controller {
	return &Controller{
		factory:    factory,
		projectDir: projectDir,
		phase:      PhaseIdle,
	}
}

// SetListener installs the upward notification sink. Install before the
// first command; replacing it mid-session is not supported.
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// SetUnwrapDeadband widens the unwrap threshold for noisy angle sensors.
// Applies from the next session start.
func (c *Controller) SetUnwrapDeadband(deg float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadband = deg
}

// Phase reports the current lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot reports phase, per-capability status and the latest sample.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Phase:        c.phase.String(),
		TorqueSource: c.torqueStatus.String(),
		AngleSource:  c.angleStatus.String(),
		Motor:        c.motorStatus.String(),
		RecordPath:   c.recordPath,
	}
	if c.haveSample {
		s := c.latest
		snap.Latest = &s
	}
	return snap
}

// Activate connects the torque source, the angle source and the motor.
// Capabilities that fail to initialize are flagged Faulted; as long as at
// least one connects the stand goes to HardwareReady so the operator can run
// degraded (the init error is still returned). If everything fails the phase
// stays Idle.
func (c *Controller) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		return fmt.Errorf("%w: activate in phase %s", ErrPrecondition, c.phase)
	}

	c.setStatusLocked(hw.CapTorque, hw.Initializing)
	c.setStatusLocked(hw.CapAngle, hw.Initializing)
	c.setStatusLocked(hw.CapMotor, hw.Initializing)

	var failures []string

	if ts, err := c.factory.TorqueSource(); err != nil {
		log.Printf("session: torque source init failed: %v", err)
		c.setStatusLocked(hw.CapTorque, hw.Faulted)
		failures = append(failures, fmt.Sprintf("torque source: %v", err))
	} else {
		c.torque = ts
		c.setStatusLocked(hw.CapTorque, hw.Ready)
	}

	if as, err := c.factory.AngleSource(); err != nil {
		log.Printf("session: angle source init failed: %v", err)
		c.setStatusLocked(hw.CapAngle, hw.Faulted)
		failures = append(failures, fmt.Sprintf("angle source: %v", err))
	} else {
		c.angleSrc = as
		c.setStatusLocked(hw.CapAngle, hw.Ready)
	}

	if m, err := c.factory.Motor(); err != nil {
		log.Printf("session: motor init failed: %v", err)
		c.setStatusLocked(hw.CapMotor, hw.Faulted)
		failures = append(failures, fmt.Sprintf("motor: %v", err))
	} else {
		c.motor = m
		c.setStatusLocked(hw.CapMotor, hw.Ready)
	}

	if len(failures) == 3 {
		return fmt.Errorf("%w: %s", ErrHardwareInit, strings.Join(failures, "; "))
	}

	c.setPhaseLocked(PhaseHardwareReady)
	if len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrHardwareInit, strings.Join(failures, "; "))
	}
	return nil
}

// Deactivate disconnects everything and returns to Idle. A running session
// is force-stopped first. Safe to call in any phase.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseRunning {
		c.finishLocked(measure.StopOperator)
	}

	if c.torque != nil {
		if err := c.torque.Close(); err != nil {
			log.Printf("session: closing torque source: %v", err)
		}
		c.torque = nil
	}
	if c.angleSrc != nil {
		if err := c.angleSrc.Close(); err != nil {
			log.Printf("session: closing angle source: %v", err)
		}
		c.angleSrc = nil
	}
	if c.motor != nil {
		if err := c.motor.Close(); err != nil {
			log.Printf("session: closing motor: %v", err)
		}
		c.motor = nil
	}

	c.setStatusLocked(hw.CapTorque, hw.NotInitialized)
	c.setStatusLocked(hw.CapAngle, hw.NotInitialized)
	c.setStatusLocked(hw.CapMotor, hw.NotInitialized)
	c.setPhaseLocked(PhaseIdle)
	return nil
}

// Calibrate homes the motor, takes the zero-offset torque reading and resets
// the unwrap state. Allowed from HardwareReady, Calibrated and Stopped; on
// failure the phase is left untouched and neither the tare nor the unwrap
// state changes.
func (c *Controller) Calibrate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseHardwareReady, PhaseCalibrated, PhaseStopped:
	default:
		return fmt.Errorf("%w: calibrate in phase %s", ErrPrecondition, c.phase)
	}
	if c.motor == nil {
		return fmt.Errorf("%w: motor not initialized", ErrCalibration)
	}
	if c.torque == nil {
		return fmt.Errorf("%w: torque source not initialized", ErrCalibration)
	}

	if err := c.motor.Home(); err != nil {
		return fmt.Errorf("%w: %v", ErrCalibration, err)
	}
	tare, err := c.torque.ReadVoltage()
	if err != nil {
		return fmt.Errorf("%w: reading zero offset: %v", ErrCalibration, err)
	}

	c.tareVolts = tare
	if c.unwrapper != nil {
		c.unwrapper.Reset()
	}
	log.Printf("session: calibrated, torque zero offset %.4f V", tare)
	c.setPhaseLocked(PhaseCalibrated)
	return nil
}

// Start validates the config, creates the record, commands the motor and
// begins ticking. Allowed from Calibrated and Stopped.
func (c *Controller) Start(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseRunning {
		return fmt.Errorf("%w: session already running", ErrPrecondition)
	}
	switch c.phase {
	case PhaseCalibrated, PhaseStopped:
	default:
		return fmt.Errorf("%w: start in phase %s", ErrPrecondition, c.phase)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if c.motorStatus != hw.Ready {
		return fmt.Errorf("%w: motor is %s", ErrPrecondition, c.motorStatus)
	}
	if c.torqueStatus != hw.Ready {
		return fmt.Errorf("%w: torque source is %s", ErrPrecondition, c.torqueStatus)
	}
	if cfg.AngleSource == measure.AngleFromAnalog && c.angleStatus != hw.Ready {
		return fmt.Errorf("%w: angle source is %s", ErrPrecondition, c.angleStatus)
	}

	startedAt := time.Now()
	w, err := record.Create(c.projectDir, record.Header{
		StartedAt:   startedAt,
		SampleName:  cfg.SampleName,
		MaxAngleDeg: cfg.MaxAngle,
		MaxTorqueNm: cfg.MaxTorque,
		MaxVelocity: cfg.MaxVelocity,
		TorqueScale: cfg.TorqueScale,
		Interval:    cfg.Interval,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}

	u := angle.New(cfg.EncoderMode)
	u.SetDeadband(c.deadband)

	if err := c.motor.MoveContinuous(cfg.MaxVelocity); err != nil {
		if cerr := w.Close(); cerr != nil {
			log.Printf("session: closing record after failed start: %v", cerr)
		}
		return fmt.Errorf("starting motor: %w", err)
	}

	c.cfg = cfg
	c.unwrapper = u
	c.assembler = measure.NewAssembler(cfg.AngleSource, cfg.AngleSpan, cfg.TorqueScale, c.tareVolts, u)
	c.writer = w
	c.recordPath = w.Path()
	c.startedAt = startedAt
	c.lastTorqueV = 0
	c.lastAngleRaw = 0
	c.haveSample = false
	c.done = make(chan struct{})

	log.Printf("session: recording %q at %v to %s", cfg.SampleName, cfg.Interval, c.recordPath)
	c.setPhaseLocked(PhaseRunning)
	go c.run(c.done, cfg.Interval)
	return nil
}

// Stop ends the running session. The in-flight tick, if any, completes
// first; the stop lands at the tick boundary.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		return fmt.Errorf("%w: no session running", ErrPrecondition)
	}
	c.finishLocked(measure.StopOperator)
	return nil
}

func (c *Controller) run(done chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.tick()
			// A tick that overran the interval suppresses the fire
			// that queued behind it.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// tick reads both sources, assembles one sample, writes it and evaluates
// the stop conditions. Read failures are absorbed: the last good value (zero
// before the first success) substitutes and the session keeps running.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		return
	}

	elapsed := time.Since(c.startedAt)

	torqueV, err := c.torque.ReadVoltage()
	if err != nil {
		log.Printf("session: torque read failed, substituting %.4f V: %v", c.lastTorqueV, err)
		torqueV = c.lastTorqueV
	} else {
		c.lastTorqueV = torqueV
	}

	var angleRaw float64
	if c.cfg.AngleSource == measure.AngleFromMotor {
		angleRaw, err = c.motor.ReportedPosition()
	} else {
		angleRaw, err = c.angleSrc.ReadRaw()
	}
	if err != nil {
		log.Printf("session: angle read failed, substituting %.4f: %v", c.lastAngleRaw, err)
		angleRaw = c.lastAngleRaw
	} else {
		c.lastAngleRaw = angleRaw
	}

	s := c.assembler.Assemble(elapsed, torqueV, angleRaw)
	c.latest = s
	c.haveSample = true

	if err := c.writer.Append(s); err != nil {
		log.Printf("session: record write failed, aborting session: %v", err)
		c.finishLocked(measure.StopFault)
		return
	}
	if c.listener != nil {
		c.listener.SampleRecorded(s)
	}

	lim := measure.Limits{MaxAngleDeg: c.cfg.MaxAngle, MaxTorqueNm: c.cfg.MaxTorque}
	if reason := measure.EvalStop(s, lim); reason != measure.StopNone {
		log.Printf("session: stop condition met: %s", reason)
		c.finishLocked(reason)
	}
}

// finishLocked performs the single stop path: halt ticking, stop the motor
// once, close the record, go to Stopped. Callers hold c.mu.
func (c *Controller) finishLocked(reason measure.StopReason) {
	if c.phase != PhaseRunning {
		return
	}

	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if err := c.motor.Stop(); err != nil {
		log.Printf("session: stopping motor: %v", err)
	}
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			log.Printf("session: closing record: %v", err)
		}
		c.writer = nil
	}

	c.setPhaseLocked(PhaseStopped)
	if c.listener != nil {
		c.listener.SessionEnded(reason)
	}
}

func (c *Controller) setPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.phase = p
	log.Printf("session: phase %s", p)
	if c.listener != nil {
		c.listener.PhaseChanged(p)
	}
}

func (c *Controller) setStatusLocked(capability hw.Capability, s hw.Status) {
	var cur *hw.Status
	switch capability {
	case hw.CapTorque:
		cur = &c.torqueStatus
	case hw.CapAngle:
		cur = &c.angleStatus
	case hw.CapMotor:
		cur = &c.motorStatus
	default:
		return
	}
	if *cur == s {
		return
	}
	*cur = s
	if c.listener != nil {
		c.listener.HardwareChanged(capability, s)
	}
}
