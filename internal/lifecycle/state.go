package lifecycle

import "github.com/georgeshao/genstudio/pkg/types"

var transitions = map[types.Status][]types.Status{
	types.StatusLoading:    {types.StatusQueued, types.StatusCompleted, types.StatusFailed},
	types.StatusQueued:     {types.StatusProcessing, types.StatusCompleted, types.StatusFailed},
	types.StatusProcessing: {types.StatusCompleted, types.StatusFailed},
}

// CanTransition reports whether a record may move from one status to another.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to types.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
