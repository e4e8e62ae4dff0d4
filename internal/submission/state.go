package submission

import "stacingest/domain/core"

// State is a submission state machine state
type State string

const (
	Idle            State = "idle"
	LoadingExisting State = "loadingExisting"
	ValidatingCog   State = "validatingCog"
	CogWarning      State = "cogWarning"
	CommentCapture  State = "commentCapture"
	Submitting      State = "submitting"
	Success         State = "success"
	Error           State = "error"
)

// Busy reports whether a collaborator call is in flight
func (s State) Busy() bool {
	return s == LoadingExisting || s == ValidatingCog || s == Submitting
}

// Terminal reports whether only a reset can leave s
func (s State) Terminal() bool {
	return s == Success || s == Error
}

// Transition is one recorded state change
type Transition struct {
	From   State          `json:"from"`
	To     State          `json:"to"`
	Action string         `json:"action"`
	At     core.Timestamp `json:"at"`
}

const maxHistory = 50
