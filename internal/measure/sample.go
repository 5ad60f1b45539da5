package measure

import "time"

// AngleSource selects where the angle reading comes from.
type AngleSource string

const (
	// AngleFromAnalog reads a voltage from the analog angle input; the
	// voltage is mapped onto the configured span and unwrapped.
	AngleFromAnalog AngleSource = "external_analog"
	// AngleFromMotor takes the motor's reported position directly. The
	// motor already reports a continuous angle, so unwrap is bypassed.
	AngleFromMotor AngleSource = "motor_reported"
)

// Valid reports whether s is one of the known source spellings.
func (s AngleSource) Valid() bool {
	return s == AngleFromAnalog || s == AngleFromMotor
}

// Sample is one measurement tick, immutable once assembled.
type Sample struct {
	Elapsed  time.Duration `json:"-"`         // since session start
	ElapsedS float64       `json:"elapsed_s"` // same, in seconds for wire consumers

	TorqueVolts float64     `json:"torque_volts"` // raw sensor voltage, before tare
	AngleVolts  float64     `json:"angle_volts"`  // not meaningful for motor_reported
	Source      AngleSource `json:"angle_source"`

	TorqueNm float64 `json:"torque_nm"`
	AngleDeg float64 `json:"angle_deg"` // continuous (unwrapped)
	Turns    int     `json:"turns"`
}
