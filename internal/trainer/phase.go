package trainer

// Phase is the position of a run in the training state machine.
type Phase int

// Training phases. Converged, Completed and Interrupted end the loop;
// Finalized follows once the best weights are loaded back.
const (
	NotStarted Phase = iota
	Training
	Validating
	Converged
	Completed
	Interrupted
	Finalized
)

var phaseNames = [...]string{
	NotStarted:  "not_started",
	Training:    "training",
	Validating:  "validating",
	Converged:   "converged",
	Completed:   "completed",
	Interrupted: "interrupted",
	Finalized:   "finalized",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
