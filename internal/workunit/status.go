package workunit

import "fmt"

// Status represents the lifecycle state of a work unit.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusSeparating   Status = "separating"
	StatusTranscribing Status = "transcribing"
	StatusRecombining  Status = "recombining"
	StatusFinalizing   Status = "finalizing"
	StatusPublishing   Status = "publishing"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusExtracting},
	StatusExtracting:   {StatusSeparating},
	StatusSeparating:   {StatusTranscribing, StatusRecombining},
	StatusTranscribing: {StatusRecombining},
	StatusRecombining:  {StatusFinalizing},
	StatusFinalizing:   {StatusPublishing, StatusSucceeded},
	StatusPublishing:   {StatusSucceeded},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed. Any
// non-terminal status may move to failed.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrInvalidTransition describes a rejected status change.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
