// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package units

// AngleSpan describes the affine mapping between the angle sensor's voltage
// output and the angle it represents.
type AngleSpan struct {
	MinVolts float64 `json:"min_volts"`
	MaxVolts float64 `json:"max_volts"`
	MinDeg   float64 `json:"min_deg"`
	MaxDeg   float64 `json:"max_deg"`
}

// Degenerate reports whether the span cannot be inverted (zero voltage or
// angle width).
func (s AngleSpan) Degenerate() bool {
	return s.MaxVolts == s.MinVolts || s.MaxDeg == s.MinDeg
}

// TorqueFromVoltage converts a sensor voltage to torque in Nm.
// No clamping: values outside the nominal sensor range pass through.
func TorqueFromVoltage(volts, scaleNmPerVolt float64) float64 {
	return volts * scaleNmPerVolt
}

// VoltageFromTorque is the inverse of TorqueFromVoltage, used by the
// simulator and by tests.
func VoltageFromTorque(torqueNm, scaleNmPerVolt float64) float64 {
	return torqueNm / scaleNmPerVolt
}

// AngleFromVoltage maps a sensor voltage onto the span's angle range.
// No clamping: a voltage outside [MinVolts, MaxVolts] extrapolates.
func AngleFromVoltage(volts float64, span AngleSpan) float64 {
	return (volts-span.MinVolts)/(span.MaxVolts-span.MinVolts)*(span.MaxDeg-span.MinDeg) + span.MinDeg
}

// VoltageFromAngle is the inverse of AngleFromVoltage.
func VoltageFromAngle(deg float64, span AngleSpan) float64 {
	return (deg-span.MinDeg)/(span.MaxDeg-span.MinDeg)*(span.MaxVolts-span.MinVolts) + span.MinVolts
}
