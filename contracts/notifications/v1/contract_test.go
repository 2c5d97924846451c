package v1

import (
	"errors"
	"testing"
)

func TestDecode_EventName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "named", in: `{"event":"team_invitation","team_name":"Platform"}`, want: EventTeamInvitation},
		{name: "missing", in: `{"team_name":"Platform"}`, want: DefaultEvent},
		{name: "empty", in: `{"event":""}`, want: DefaultEvent},
		{name: "not a string", in: `{"event":42}`, want: DefaultEvent},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, err := Decode([]byte(tc.in))
			if err != nil {
				t.Fatalf("Decode(%s): %v", tc.in, err)
			}
			if got := m.EventName(); got != tc.want {
				t.Fatalf("EventName()=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := Decode([]byte(`[1,2]`)); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject for array, got %v", err)
	}
	if _, err := Decode([]byte(`null`)); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject for null, got %v", err)
	}
}

func TestMessage_As(t *testing.T) {
	t.Parallel()

	m, err := Decode([]byte(`{"event":"team_membership_updated","team_id":7,"team_name":"Core","role":"admin","status":"suspended"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var p TeamMembershipUpdatedPayload
	if err := m.As(&p); err != nil {
		t.Fatalf("As: %v", err)
	}
	if p.TeamID != 7 || p.TeamName != "Core" || p.Role != "admin" || p.Status != "suspended" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}
