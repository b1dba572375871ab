package tagset

import "testing"

func TestSetHasAndNames(t *testing.T) {
	s := New("linux", "amd64", "linux")
	if !s.Has("linux") || !s.Has("amd64") {
		t.Fatal("expected linux and amd64 present")
	}
	if s.Has("darwin") {
		t.Fatal("darwin should not be present")
	}
	if got, want := s.Names(), []string{"linux", "amd64"}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestSetRemove(t *testing.T) {
	s := New("linux", "amd64")
	s.Remove("linux")
	if s.Has("linux") {
		t.Fatal("expected linux removed")
	}
	if got, want := s.Names(), []string{"amd64"}; len(got) != 1 || got[0] != want[0] {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	s.Remove("nonexistent") // no-op, must not panic
}

func TestParsePredicateIncludeExclude(t *testing.T) {
	p, err := ParsePredicate("+linux-old")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tags) != 2 || p.Tags[0] != (Tag{"linux", Include}) || p.Tags[1] != (Tag{"old", Exclude}) {
		t.Errorf("got %+v", p.Tags)
	}
}

func TestParsePredicateRejectsDot(t *testing.T) {
	if _, err := ParsePredicate("+lin.ux"); err == nil {
		t.Error("expected error for '.' in tag predicate")
	}
}

func TestParsePredicateRequiresLeadingSigil(t *testing.T) {
	if _, err := ParsePredicate("linux"); err == nil {
		t.Error("expected error for missing leading sigil")
	}
}

func TestParseDirectoryPredicateImplicitInclude(t *testing.T) {
	p, err := ParseDirectoryPredicate("linux-old")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tags) != 2 || p.Tags[0] != (Tag{"linux", Include}) || p.Tags[1] != (Tag{"old", Exclude}) {
		t.Errorf("got %+v", p.Tags)
	}
}

func TestParseDirectoryPredicateRejectsLeadingSigil(t *testing.T) {
	if _, err := ParseDirectoryPredicate("+linux"); err == nil {
		t.Error("expected error for leading sigil in directory predicate")
	}
}

func TestSatisfiedTracksConsulted(t *testing.T) {
	set := New("linux")
	p, err := ParsePredicate("+linux-darwin")
	if err != nil {
		t.Fatal(err)
	}
	var consulted []string
	if !p.Satisfied(set, &consulted) {
		t.Error("expected predicate to be satisfied")
	}
	if len(consulted) != 2 {
		t.Errorf("consulted = %v, want 2 entries", consulted)
	}
}

func TestSatisfiedExcludeFails(t *testing.T) {
	set := New("linux", "darwin")
	p, err := ParsePredicate("+linux-darwin")
	if err != nil {
		t.Fatal(err)
	}
	var consulted []string
	if p.Satisfied(set, &consulted) {
		t.Error("expected predicate to fail: darwin excluded but present")
	}
}
