// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package measure

import "math"

// StopReason says why a running session ended.
type StopReason int

const (
	StopNone StopReason = iota // no stop condition met
	StopMaxAngle
	StopMaxTorque
	StopOperator // stop command
	StopFault    // session aborted on a fatal error
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopMaxAngle:
		return "max_angle_reached"
	case StopMaxTorque:
		return "max_torque_reached"
	case StopOperator:
		return "operator_stop"
	case StopFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Limits are the operator-configured stop thresholds.
type Limits struct {
	MaxAngleDeg float64
	MaxTorqueNm float64
}

// EvalStop checks a sample against the limits. The angle check takes
// precedence when both limits trip in the same tick. Purely advisory; the
// session decides what to do with the verdict.
func EvalStop(s Sample, lim Limits) StopReason {
	if math.Abs(s.AngleDeg) >= lim.MaxAngleDeg {
		return StopMaxAngle
	}
	if math.Abs(s.TorqueNm) >= lim.MaxTorqueNm {
		return StopMaxTorque
	}
	return StopNone
}
