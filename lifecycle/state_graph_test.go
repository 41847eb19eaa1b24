package lifecycle

import (
	"testing"

	"civicflow/models"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition_Exhaustive(t *testing.T) {
	legal := map[Edge]bool{
		{models.StatusFiled, models.StatusInProgress}:     true,
		{models.StatusInProgress, models.StatusResolved}:  true,
		{models.StatusResolved, models.StatusClosed}:      true,
		{models.StatusFiled, models.StatusCancelled}:      true,
		{models.StatusInProgress, models.StatusCancelled}: true,
		{models.StatusHold, models.StatusCancelled}:       true,
		{models.StatusInProgress, models.StatusHold}:      true,
		{models.StatusHold, models.StatusInProgress}:      true,
	}

	for _, from := range models.AllStatuses {
		for _, to := range models.AllStatuses {
			e := Edge{from, to}
			t.Run(e.String(), func(t *testing.T) {
				assert.Equal(t, legal[e], IsValidTransition(from, to))
			})
		}
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, s := range []models.ComplaintStatus{models.StatusClosed, models.StatusCancelled} {
		assert.True(t, IsTerminal(s))
		assert.Empty(t, NextStates(s))
	}
	assert.False(t, IsTerminal(models.StatusResolved))
}

func TestNextStates(t *testing.T) {
	tests := []struct {
		from models.ComplaintStatus
		want []models.ComplaintStatus
	}{
		{models.StatusFiled, []models.ComplaintStatus{models.StatusInProgress, models.StatusCancelled}},
		{models.StatusInProgress, []models.ComplaintStatus{models.StatusResolved, models.StatusCancelled, models.StatusHold}},
		{models.StatusResolved, []models.ComplaintStatus{models.StatusClosed}},
		{models.StatusHold, []models.ComplaintStatus{models.StatusInProgress, models.StatusCancelled}},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got := NextStates(tt.from)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestInvalidReason(t *testing.T) {
	assert.Empty(t, InvalidReason(models.StatusFiled, models.StatusInProgress))
	assert.Contains(t, InvalidReason(models.StatusClosed, models.StatusFiled), "terminal")
	assert.Contains(t, InvalidReason(models.StatusFiled, models.StatusFiled), "already")
	assert.Contains(t, InvalidReason("BOGUS", models.StatusFiled), "unknown current status")
	assert.Contains(t, InvalidReason(models.StatusFiled, models.StatusResolved), "cannot move")
}

func TestPolicyCoversExactlyTheGraph(t *testing.T) {
	graphEdges := make([]string, 0, len(stateGraph))
	for e := range stateGraph {
		graphEdges = append(graphEdges, e.String())
	}
	policyEdges := make([]string, 0, len(transitionPolicy))
	for e, roles := range transitionPolicy {
		policyEdges = append(policyEdges, e.String())
		assert.NotEmpty(t, roles, "edge %s has no roles", e)
	}
	less := func(a, b string) bool { return a < b }
	if diff := cmp.Diff(graphEdges, policyEdges, cmpopts.SortSlices(less)); diff != "" {
		t.Errorf("policy edges differ from graph edges (-graph +policy):\n%s", diff)
	}
}
