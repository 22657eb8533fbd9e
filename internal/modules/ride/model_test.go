package ride

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusAccepted, false},
		{StatusPending, StatusStarted, false},

		{StatusAssigned, StatusAccepted, true},
		{StatusAssigned, StatusPending, true}, // rejection hands the ride back
		{StatusAssigned, StatusCancelled, true},
		{StatusAssigned, StatusStarted, false},
		{StatusAssigned, StatusCompleted, false},

		{StatusAccepted, StatusStarted, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, false},
		{StatusAccepted, StatusPending, false},

		{StatusStarted, StatusCompleted, true},
		{StatusStarted, StatusCancelled, false}, // in-progress rides cannot be cancelled
		{StatusStarted, StatusPending, false},

		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAssigned, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if outs := AllowedTransitions[s]; len(outs) != 0 {
			t.Errorf("%s should be terminal, has exits %v", s, outs)
		}
	}
}
