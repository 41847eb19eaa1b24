// Package lifecycle holds the complaint state machine, the role policy over its
// edges, and the validator that combines them with the proof/signoff guards.
// Nothing here touches storage directly; guards arrive through GuardGates.
package lifecycle

import (
	"fmt"

	"civicflow/models"
)

// Edge is one directed status transition.
type Edge struct {
	From models.ComplaintStatus
	To   models.ComplaintStatus
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

// stateGraph is the full set of legal edges. CLOSED and CANCELLED have none outgoing.
var stateGraph = map[Edge]struct{}{
	{models.StatusFiled, models.StatusInProgress}:     {},
	{models.StatusInProgress, models.StatusResolved}:  {},
	{models.StatusResolved, models.StatusClosed}:      {},
	{models.StatusFiled, models.StatusCancelled}:      {},
	{models.StatusInProgress, models.StatusCancelled}: {},
	{models.StatusHold, models.StatusCancelled}:       {},
	{models.StatusInProgress, models.StatusHold}:      {},
	{models.StatusHold, models.StatusInProgress}:      {},
}

// IsValidTransition reports whether from→to is an edge of the state graph.
func IsValidTransition(from, to models.ComplaintStatus) bool {
	_, ok := stateGraph[Edge{from, to}]
	return ok
}

// IsTerminal reports whether status has no outgoing edges.
func IsTerminal(status models.ComplaintStatus) bool {
	return status == models.StatusClosed || status == models.StatusCancelled
}

// NextStates returns the graph successors of from, in lifecycle order.
func NextStates(from models.ComplaintStatus) []models.ComplaintStatus {
	var next []models.ComplaintStatus
	for _, to := range models.AllStatuses {
		if IsValidTransition(from, to) {
			next = append(next, to)
		}
	}
	return next
}

// InvalidReason explains why from→to is rejected; empty when the edge is legal.
func InvalidReason(from, to models.ComplaintStatus) string {
	switch {
	case IsValidTransition(from, to):
		return ""
	case !from.Valid():
		return fmt.Sprintf("unknown current status %q", from)
	case !to.Valid():
		return fmt.Sprintf("unknown target status %q", to)
	case from == to:
		return fmt.Sprintf("complaint is already %s", to)
	case IsTerminal(from):
		return fmt.Sprintf("%s is a terminal status; no further transitions are allowed", from)
	}
	return fmt.Sprintf("cannot move from %s to %s", from, to)
}
