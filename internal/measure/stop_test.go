package measure

import "testing"

func TestEvalStop(t *testing.T) {
	lim := Limits{MaxAngleDeg: 360, MaxTorqueNm: 15}

	tests := []struct {
		name   string
		sample Sample
		want   StopReason
	}{
		{"below both limits", Sample{AngleDeg: 120, TorqueNm: 3.2}, StopNone},
		{"angle limit reached", Sample{AngleDeg: 361, TorqueNm: 3.2}, StopMaxAngle},
		{"angle limit exact", Sample{AngleDeg: 360, TorqueNm: 0}, StopMaxAngle},
		{"torque limit reached", Sample{AngleDeg: 10, TorqueNm: 15.5}, StopMaxTorque},
		{"torque limit exact", Sample{AngleDeg: 10, TorqueNm: 15}, StopMaxTorque},
		{"both tripped, angle wins", Sample{AngleDeg: 400, TorqueNm: 20}, StopMaxAngle},
		{"negative angle counts absolute", Sample{AngleDeg: -365, TorqueNm: 0}, StopMaxAngle},
		{"negative torque counts absolute", Sample{AngleDeg: 0, TorqueNm: -16}, StopMaxTorque},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalStop(tt.sample, lim); got != tt.want {
				t.Errorf("EvalStop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStopReasonString(t *testing.T) {
	tests := []struct {
		reason StopReason
		want   string
	}{
		{StopNone, "none"},
		{StopMaxAngle, "max_angle_reached"},
		{StopMaxTorque, "max_torque_reached"},
		{StopOperator, "operator_stop"},
		{StopFault, "fault"},
		{StopReason(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("StopReason(%d).String() = %q, want %q", int(tt.reason), got, tt.want)
		}
	}
}
