package sensor

// Phase is the lifecycle phase of the supervised sensor.
type Phase int

const (
	// PhaseIdle means no sensor process exists.
	PhaseIdle Phase = iota
	// PhaseLaunching means a process is being spawned.
	PhaseLaunching
	// PhaseRunning means the sensor is live and reporting activity.
	PhaseRunning
	// PhaseDegraded means the sensor is live but reported a permission denial.
	PhaseDegraded
	// PhaseTerminated means the process exited and its streams are drained.
	PhaseTerminated
	// PhaseRestarting means an operator restart is between stop and launch.
	PhaseRestarting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunching:
		return "launching"
	case PhaseRunning:
		return "running"
	case PhaseDegraded:
		return "degraded"
	case PhaseTerminated:
		return "terminated"
	case PhaseRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

// Live reports whether a process exists in this phase.
func (p Phase) Live() bool {
	return p == PhaseRunning || p == PhaseDegraded
}
