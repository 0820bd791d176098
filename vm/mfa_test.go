package vm

import (
	"slices"
	"testing"
)

func TestMFA_EqualityAndMapKey(t *testing.T) {
	at := NewAtomTable()
	a := mfa(at, "math", "add", 2)
	b := mfa(at, "math", "add", 2)
	c := mfa(at, "math", "add", 3)

	if a != b {
		t.Error("identical MFAs should be equal")
	}
	if a == c {
		t.Error("MFAs differing in arity should differ")
	}

	m := map[MFA]int{a: 1}
	if m[b] != 1 {
		t.Error("equal MFA should hit the same map entry")
	}
}

func TestMFA_Ordering(t *testing.T) {
	list := []MFA{
		{Module: 2, Function: 1, Arity: 0},
		{Module: 1, Function: 3, Arity: 1},
		{Module: 1, Function: 3, Arity: 0},
		{Module: 1, Function: 2, Arity: 5},
	}
	slices.SortFunc(list, MFA.Compare)

	want := []MFA{
		{Module: 1, Function: 2, Arity: 5},
		{Module: 1, Function: 3, Arity: 0},
		{Module: 1, Function: 3, Arity: 1},
		{Module: 2, Function: 1, Arity: 0},
	}
	if !slices.Equal(list, want) {
		t.Errorf("sorted = %v, want %v", list, want)
	}
	if !want[0].Less(want[1]) || want[1].Less(want[0]) {
		t.Error("Less disagrees with Compare")
	}
}

func TestParseMFA(t *testing.T) {
	at := NewAtomTable()

	got, err := ParseMFA(at, "erlang:+/2")
	if err != nil {
		t.Fatalf("ParseMFA: %v", err)
	}
	if got != mfa(at, "erlang", "+", 2) {
		t.Errorf("ParseMFA = %v", got)
	}
	if s := got.Format(at); s != "erlang:+/2" {
		t.Errorf("Format = %q, want erlang:+/2", s)
	}

	// Function names may contain slashes; the last one separates arity.
	got, err = ParseMFA(at, "m:a/b/1")
	if err != nil {
		t.Fatalf("ParseMFA: %v", err)
	}
	if at.Name(got.Function) != "a/b" || got.Arity != 1 {
		t.Errorf("ParseMFA(m:a/b/1) = %s", got.Format(at))
	}
}

func TestParseMFA_Invalid(t *testing.T) {
	at := NewAtomTable()
	for _, s := range []string{"", "noarity", ":f/1", "m:f", "m:/1", "m:f/x", "m:f/-1"} {
		if _, err := ParseMFA(at, s); err == nil {
			t.Errorf("ParseMFA(%q) succeeded, want error", s)
		}
	}
}
