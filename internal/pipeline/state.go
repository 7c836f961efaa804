package pipeline

// State names one phase of the extraction run. The machine is strictly
// linear; there is no automatic cycle back - recovery is always the
// operator re-running the whole tool.
type State string

const (
	StateProvisioning    State = "provisioning"
	StateWaitingForLogin State = "waiting-for-login"
	StateExtracting      State = "extracting"
	StateValidating      State = "validating"
	StateDone            State = "done"
)

// next returns the state that follows s, or "" for terminal states.
func (s State) next() State {
	switch s {
	case StateProvisioning:
		return StateWaitingForLogin
	case StateWaitingForLogin:
		return StateExtracting
	case StateExtracting:
		return StateValidating
	case StateValidating:
		return StateDone
	}
	return ""
}

// Terminal reports whether the run stops in this state.
func (s State) Terminal() bool { return s == StateDone }
