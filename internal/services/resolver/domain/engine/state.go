package engine

// State is a resolution lifecycle state.
type State int

const (
	StatePending State = iota
	StateVerifying
	StateVerified
	StateComputing
	StateWon
	StateLost
	StatePaid
	StateSettled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateVerifying:
		return "Verifying"
	case StateVerified:
		return "Verified"
	case StateComputing:
		return "Computing"
	case StateWon:
		return "Won"
	case StateLost:
		return "Lost"
	case StatePaid:
		return "Paid"
	case StateSettled:
		return "Settled"
	case StateRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateSettled || s == StateRejected
}

var transitions = map[State][]State{
	StatePending:   {StateVerifying},
	StateVerifying: {StateVerified, StateRejected},
	StateVerified:  {StateComputing},
	StateComputing: {StateWon, StateLost, StateRejected},
	StateWon:       {StatePaid, StateRejected},
	StateLost:      {StateSettled},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
