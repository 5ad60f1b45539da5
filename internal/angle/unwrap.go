// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package angle

import "fmt"

// Mode selects how the raw angle reading is interpreted.
type Mode int

const (
	// SingleTurn means the sensor reports position modulo one revolution
	// and wrap events must be counted to recover a continuous angle.
	SingleTurn Mode = iota
	// MultiTurn means the source already reports a continuous absolute
	// position; readings pass through untouched.
	MultiTurn
)

func (m Mode) String() string {
	switch m {
	case SingleTurn:
		return "single_turn"
	case MultiTurn:
		return "multi_turn"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps the wire/config spelling to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single_turn":
		return SingleTurn, nil
	case "multi_turn":
		return MultiTurn, nil
	default:
		return 0, fmt.Errorf("unknown encoder mode %q", s)
	}
}

// Unwrapper reconstructs a continuous multi-revolution angle from a sensor
// that reports position modulo 360°. A jump of more than half a revolution
// between consecutive readings is counted as a wrap. The first reading after
// construction or Reset anchors the continuous angle at the raw value; wrap
// detection starts with the second reading.
//
// Correctness requires sampling fast enough that the true displacement
// between updates never exceeds 180°; the engine cannot detect a violation
// and will miscount turns if it happens.
//
// Invariant after every single-turn update:
//
//	continuous == prevRaw + 360*turns
type Unwrapper struct {
	mode       Mode
	deadband   float64
	primed     bool
	prevRaw    float64
	turns      int
	continuous float64
}

// New returns an engine in the reset state (prev=0, turns=0, continuous=0).
func New(mode Mode) *Unwrapper {
	return &Unwrapper{mode: mode}
}

// SetDeadband widens the ±180° wrap threshold by deg, so noise spikes just
// past the half-revolution boundary are not counted as wraps. Zero (the
// default) keeps the exact ±180° threshold.
func (u *Unwrapper) SetDeadband(deg float64) {
	if deg < 0 {
		deg = 0
	}
	u.deadband = deg
}

// Update consumes one raw reading and returns the continuous angle.
// In MultiTurn mode the reading passes through and no state changes.
func (u *Unwrapper) Update(raw float64) float64 {
	if u.mode == MultiTurn {
		return raw
	}

	if u.primed {
		threshold := 180.0 + u.deadband
		delta := raw - u.prevRaw
		switch {
		case delta < -threshold:
			u.turns++ // forward wrap, e.g. 358° -> 5°
		case delta > threshold:
			u.turns-- // backward wrap, e.g. 5° -> 358°
		}
	}
	u.primed = true

	u.continuous = raw + 360*float64(u.turns)
	u.prevRaw = raw
	return u.continuous
}

// Reset returns the engine to (prev=0, turns=0, continuous=0). Called on
// home/calibrate and at session start.
func (u *Unwrapper) Reset() {
	u.primed = false
	u.prevRaw = 0
	u.turns = 0
	u.continuous = 0
}

// Turns reports the signed count of full revolutions inferred so far.
func (u *Unwrapper) Turns() int {
	return u.turns
}

// Continuous reports the last continuous angle produced by Update.
func (u *Unwrapper) Continuous() float64 {
	return u.continuous
}

// Mode reports how readings are interpreted.
func (u *Unwrapper) Mode() Mode {
	return u.mode
}
