package engine

import (
	"time"

	"github.com/ivlev/picframe/internal/input"
)

// PowerState is the orchestrator state.
type PowerState int

const (
	Active PowerState = iota
	AwaitingInput
	Sleeping
	TransferMode
)

func (s PowerState) String() string {
	switch s {
	case Active:
		return "active"
	case AwaitingInput:
		return "awaiting_input"
	case Sleeping:
		return "sleeping"
	case TransferMode:
		return "transfer_mode"
	default:
		return "unknown"
	}
}

// Decision is what a button event asks the device to do next.
type Decision int

const (
	DecisionRepeat Decision = iota
	DecisionSleep
	DecisionTransfer
)

func (d Decision) String() string {
	switch d {
	case DecisionRepeat:
		return "repeat"
	case DecisionSleep:
		return "sleep"
	case DecisionTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Classify maps a button event to a decision. A timeout and a hold of at
// least longHold both mean sleep; a hold of at least transferHold means
// transfer mode when transferHold is positive. Any press, however close to
// a threshold, is classified by its hold and never as a timeout.
func Classify(ev input.Event, longHold, transferHold time.Duration) Decision {
	if !ev.Pressed {
		return DecisionSleep
	}
	if transferHold > 0 && ev.HoldDuration >= transferHold {
		return DecisionTransfer
	}
	if ev.HoldDuration >= longHold {
		return DecisionSleep
	}
	return DecisionRepeat
}

func (d Decision) next() PowerState {
	switch d {
	case DecisionSleep:
		return Sleeping
	case DecisionTransfer:
		return TransferMode
	default:
		return Active
	}
}
