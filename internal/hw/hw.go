// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

// TorqueSource reads the torque sensor's output voltage.
type TorqueSource interface {
	ReadVoltage() (float64, error)
	Close() error
}

// AngleSource reads the raw angle input: a voltage for the analog variant,
// an absolute position in degrees for a multi-turn readout.
type AngleSource interface {
	ReadRaw() (float64, error)
	Close() error
}

// Motor commands the drive. Home blocks until the drive confirms the
// reference position. ReportedPosition is only consulted when the session's
// angle source is the motor itself.
type Motor interface {
	Home() error
	MoveContinuous(velocityDegPerSec float64) error
	Stop() error
	ReportedPosition() (float64, error)
	Close() error
}

// Factory constructs connected adapters. Construction performs the connect;
// a returned error means the capability failed to initialize. The session
// closes adapters on deactivate and asks the factory again on the next
// activate.
type Factory interface {
	TorqueSource() (TorqueSource, error)
	AngleSource() (AngleSource, error)
	Motor() (Motor, error)
}
