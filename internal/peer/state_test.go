package peer

import "testing"

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from State
		to   StateKind
		want bool
	}{
		{State{Kind: StateUnknown}, StatePending, true},
		{State{Kind: StateUnknown}, StateActive, false},
		{State{Kind: StatePending, Role: RoleIncoming}, StateAccepted, true},
		{State{Kind: StatePending, Role: RoleIncoming}, StateRejected, true},
		{State{Kind: StatePending}, StateClosed, false},
		{State{Kind: StateAccepted}, StateActive, true},
		{State{Kind: StateAccepted}, StateClosed, true},
		{State{Kind: StateActive}, StateClosed, true},
		{State{Kind: StateActive}, StatePending, false},
		{State{Kind: StateClosed}, StateActive, false},
		{State{Kind: StateRejected}, StatePending, false},
	}

	for _, c := range cases {
		got := c.from.transition(c.to)
		if got != c.want {
			t.Errorf("%s -> %s: want %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestStateIsAdmitted(t *testing.T) {
	if (State{Kind: StatePending}).IsAdmitted() {
		t.Fatal("Pending must not be admitted")
	}
	if (State{Kind: StateAccepted}).IsAdmitted() {
		t.Fatal("Accepted must not be admitted (handshake not yet complete)")
	}
	if !(State{Kind: StateActive}).IsAdmitted() {
		t.Fatal("Active must be admitted")
	}
}

func TestStateString(t *testing.T) {
	s := State{Kind: StatePending, Role: RoleIncoming}
	if got, want := s.String(), "pending(incoming)"; got != want {
		t.Fatalf("String: want %q, got %q", want, got)
	}
}
