package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/measure"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// Error classes surfaced by the controller. Wrapped causes carry the detail;
// match with errors.Is.
var (
	ErrHardwareInit  = errors.New("hardware initialization failed")
	ErrCalibration   = errors.New("calibration failed")
	ErrPrecondition  = errors.New("command not allowed in current phase")
	ErrInvalidConfig = errors.New("invalid session config")
	ErrRecordWrite   = errors.New("record write failed")
)

// Phase is the session lifecycle state. Exactly one controller instance
// exists per process and its transitions are the only mutator.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseHardwareReady
	PhaseCalibrated
	PhaseRunning
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHardwareReady:
		return "hardware_ready"
	case PhaseCalibrated:
		return "calibrated"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config is the operator's session setup, immutable for the run.
type Config struct {
	SampleName  string
	MaxAngle    float64 // deg, stop limit
	MaxTorque   float64 // Nm, stop limit
	MaxVelocity float64 // deg/s, signed; sign is the direction
	Interval    time.Duration
	EncoderMode angle.Mode
	AngleSource measure.AngleSource
	TorqueScale float64 // Nm per volt
	AngleSpan   units.AngleSpan
}

// Validate rejects a config before any hardware is touched.
func (c Config) Validate() error {
	if c.SampleName == "" {
		return fmt.Errorf("%w: sample name required", ErrInvalidConfig)
	}
	if c.MaxAngle <= 0 {
		return fmt.Errorf("%w: max angle must be positive, got %g", ErrInvalidConfig, c.MaxAngle)
	}
	if c.MaxTorque <= 0 {
		return fmt.Errorf("%w: max torque must be positive, got %g", ErrInvalidConfig, c.MaxTorque)
	}
	if c.MaxVelocity == 0 {
		return fmt.Errorf("%w: velocity must be nonzero", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidConfig, c.Interval)
	}
	if c.EncoderMode != angle.SingleTurn && c.EncoderMode != angle.MultiTurn {
		return fmt.Errorf("%w: unknown encoder mode", ErrInvalidConfig)
	}
	if !c.AngleSource.Valid() {
		return fmt.Errorf("%w: unknown angle source %q", ErrInvalidConfig, string(c.AngleSource))
	}
	if c.TorqueScale <= 0 {
		return fmt.Errorf("%w: torque scale must be positive, got %g", ErrInvalidConfig, c.TorqueScale)
	}
	if c.AngleSpan.Degenerate() {
		return fmt.Errorf("%w: angle span is degenerate", ErrInvalidConfig)
	}
	return nil
}

// Listener receives the controller's upward notifications. Callbacks run on
// the controller's goroutine; implementations must return quickly and must
// not call back into the controller.
type Listener interface {
	PhaseChanged(p Phase)
	HardwareChanged(c hw.Capability, s hw.Status)
	SampleRecorded(s measure.Sample)
	SessionEnded(reason measure.StopReason)
}

// Snapshot is a point-in-time view for the state API.
type Snapshot struct {
	Phase        string          `json:"phase"`
	TorqueSource string          `json:"torque_source"`
	AngleSource  string          `json:"angle_source"`
	Motor        string          `json:"motor"`
	RecordPath   string          `json:"record_path,omitempty"`
	Latest       *measure.Sample `json:"latest_sample,omitempty"`
}
