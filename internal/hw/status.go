package hw

// Status is the lifecycle state of one hardware capability.
type Status int

const (
	NotInitialized Status = iota
	Initializing
	Ready
	Faulted
)

func (s Status) String() string {
	switch s {
	case NotInitialized:
		return "not_initialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Capability names one of the three hardware roles the core depends on.
type Capability string

const (
	CapTorque Capability = "torque_source"
	CapAngle  Capability = "angle_source"
	CapMotor  Capability = "motor"
)
