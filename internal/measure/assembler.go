package measure

import (
	"time"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// Assembler turns one raw hardware read into a Sample. The conversion order
// is fixed: angle first (convert the analog voltage onto the span, or take
// the motor position as-is), then unwrap, then torque with the calibration
// tare subtracted before scaling. The recorded torque voltage stays raw.
type Assembler struct {
	source    AngleSource
	span      units.AngleSpan
	scale     float64 // Nm per volt
	tareVolts float64 // zero-offset captured at calibration
	unwrapper *angle.Unwrapper
}

// NewAssembler binds the per-session conversion parameters. The unwrapper is
// shared with the session, which resets it on calibrate and on start.
func NewAssembler(source AngleSource, span units.AngleSpan, scaleNmPerVolt, tareVolts float64, u *angle.Unwrapper) *Assembler {
	return &Assembler{
		source:    source,
		span:      span,
		scale:     scaleNmPerVolt,
		tareVolts: tareVolts,
		unwrapper: u,
	}
}

// Assemble builds the sample for one tick. angleRaw is a voltage for the
// analog source and a continuous position in degrees for the motor source.
func (a *Assembler) Assemble(elapsed time.Duration, torqueVolts, angleRaw float64) Sample {
	var angleDeg, angleVolts float64
	var turns int
	if a.source == AngleFromAnalog {
		angleVolts = angleRaw
		bounded := units.AngleFromVoltage(angleRaw, a.span)
		angleDeg = a.unwrapper.Update(bounded)
		turns = a.unwrapper.Turns()
	} else {
		angleDeg = angleRaw
	}

	torqueNm := units.TorqueFromVoltage(torqueVolts-a.tareVolts, a.scale)

	return Sample{
		Elapsed:     elapsed,
		ElapsedS:    elapsed.Seconds(),
		TorqueVolts: torqueVolts,
		AngleVolts:  angleVolts,
		Source:      a.source,
		TorqueNm:    torqueNm,
		AngleDeg:    angleDeg,
		Turns:       turns,
	}
}
