// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package demo

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// Config shapes the simulated stand. The span and torque scale should match
// the session configuration so demo runs flow through the same conversion
// path as real hardware.
type Config struct {
	Span        units.AngleSpan
	TorqueScale float64 // Nm per volt

	Stiffness     float64 // Nm per degree of twist
	NoiseNm       float64 // uniform torque noise amplitude
	OffsetNm      float64 // sensor zero offset, tared away by calibration
	SensorLimitNm float64 // simulated torque sensor range
	JitterDeg     float64 // angle sensor noise amplitude

	Mode angle.Mode // SingleTurn wraps the simulated sensor into [0,360)
	Seed int64      // 0 seeds from the clock
}

// DefaultConfig mirrors the stand's usual bench setup: 0-10V over one
// revolution, 2 Nm/V, a soft specimen and a small uncalibrated offset.
func DefaultConfig() Config {
	return Config{
		Span:          units.AngleSpan{MinVolts: 0, MaxVolts: 10, MinDeg: 0, MaxDeg: 360},
		TorqueScale:   2.0,
		Stiffness:     0.05,
		NoiseNm:       0.1,
		OffsetNm:      0.12,
		SensorLimitNm: 20,
		JitterDeg:     0,
		Mode:          angle.SingleTurn,
	}
}

// Sim is the shared virtual stand: one motor timeline feeding the torque and
// angle views. It satisfies hw.Factory so it plugs in wherever real adapters
// would; nothing downstream can tell the difference.
type Sim struct {
	cfg Config

	mu       sync.Mutex
	now      func() time.Time
	rng      *rand.Rand
	velocity float64 // deg/s commanded
	position float64 // continuous degrees
	lastAt   time.Time
	moving   bool
}

// NewSim builds a simulator at position zero, motor stopped.
func NewSim(cfg Config) *Sim {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Sim{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewSource(seed)),
	}
	s.lastAt = s.now()
	return s
}

// advance integrates the commanded velocity up to now. Callers hold mu.
func (s *Sim) advance() {
	t := s.now()
	if s.moving {
		s.position += s.velocity * t.Sub(s.lastAt).Seconds()
	}
	s.lastAt = t
}

func (s *Sim) readTorqueVolts() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	torque := s.cfg.Stiffness*s.position + s.cfg.OffsetNm
	if s.cfg.NoiseNm > 0 {
		torque += s.cfg.NoiseNm * (2*s.rng.Float64() - 1)
	}
	if torque > s.cfg.SensorLimitNm {
		torque = s.cfg.SensorLimitNm
	} else if torque < -s.cfg.SensorLimitNm {
		torque = -s.cfg.SensorLimitNm
	}
	return units.VoltageFromTorque(torque, s.cfg.TorqueScale)
}

func (s *Sim) readAngleRaw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	raw := s.position
	if s.cfg.JitterDeg > 0 {
		raw += s.cfg.JitterDeg * (2*s.rng.Float64() - 1)
	}
	if s.cfg.Mode == angle.SingleTurn {
		raw = math.Mod(raw, 360)
		if raw < 0 {
			raw += 360
		}
	}
	return units.VoltageFromAngle(raw, s.cfg.Span)
}

func (s *Sim) home() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.position = 0
	s.velocity = 0
	s.moving = false
}

func (s *Sim) move(velocityDegPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.velocity = velocityDegPerSec
	s.moving = true
}

func (s *Sim) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.velocity = 0
	s.moving = false
}

func (s *Sim) reportedPosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.position
}

// TorqueSource hands out the torque sensor view. Never fails; the simulated
// bench is always wired up.
func (s *Sim) TorqueSource() (hw.TorqueSource, error) {
	return torqueView{s}, nil
}

// AngleSource hands out the angle sensor view.
func (s *Sim) AngleSource() (hw.AngleSource, error) {
	return angleView{s}, nil
}

// Motor hands out the virtual drive.
func (s *Sim) Motor() (hw.Motor, error) {
	return motorView{s}, nil
}

type torqueView struct{ sim *Sim }

func (v torqueView) ReadVoltage() (float64, error) { return v.sim.readTorqueVolts(), nil }
func (v torqueView) Close() error                  { return nil }

type angleView struct{ sim *Sim }

func (v angleView) ReadRaw() (float64, error) { return v.sim.readAngleRaw(), nil }
func (v angleView) Close() error              { return nil }

type motorView struct{ sim *Sim }

// Home settles the virtual drive at the reference position instantly.
func (v motorView) Home() error {
	v.sim.home()
	return nil
}

func (v motorView) MoveContinuous(velocityDegPerSec float64) error {
	v.sim.move(velocityDegPerSec)
	return nil
}

func (v motorView) Stop() error {
	v.sim.stop()
	return nil
}

func (v motorView) ReportedPosition() (float64, error) {
	return v.sim.reportedPosition(), nil
}

func (v motorView) Close() error {
	v.sim.stop()
	return nil
}
