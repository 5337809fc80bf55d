package call

// Status is the lifecycle state of a tracked tool call. The scheduler is
// the sole mutator; everything else reads statuses for display only.
type Status string

// Status values in lifecycle order.
const (
	StatusValidating       Status = "validating"
	StatusScheduled        Status = "scheduled"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusSuccess          Status = "success"
	StatusError            Status = "error"
	StatusCancelled        Status = "cancelled"
)

// transitions encodes the legal state graph. A call may never skip a state.
var transitions = map[Status][]Status{
	StatusValidating:       {StatusScheduled, StatusAwaitingApproval, StatusError, StatusCancelled},
	StatusAwaitingApproval: {StatusScheduled, StatusCancelled},
	StatusScheduled:        {StatusExecuting, StatusCancelled},
	StatusExecuting:        {StatusSuccess, StatusError, StatusCancelled},
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal edge
// in the call state graph.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
