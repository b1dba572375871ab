package ident

import "testing"

func TestEqual(t *testing.T) {
	a := MustParse("net::dns")
	b := MustParse("net::dns")
	c := MustParse("net::tcp")
	if !a.Equal(b) {
		t.Errorf("expected %v == %v", a, b)
	}
	if a.Equal(c) {
		t.Errorf("expected %v != %v", a, c)
	}
}

func TestNamespace(t *testing.T) {
	a := MustParse("net::dns")
	if got, want := a.Namespace().String(), "net"; got != want {
		t.Errorf("Namespace() = %q, want %q", got, want)
	}
	top := MustParse("net")
	if got := top.Namespace(); len(got.Parts) != 0 {
		t.Errorf("Namespace() of top-level ident = %v, want empty", got)
	}
}

func TestParseRejectsEmptyComponent(t *testing.T) {
	if _, err := Parse("net::"); err == nil {
		t.Errorf("Parse(\"net::\") expected error")
	}
	if _, err := Parse("::dns"); err == nil {
		t.Errorf("Parse(\"::dns\") expected error")
	}
}

func TestParseRejectsOverflow(t *testing.T) {
	long := make([]byte, MaxLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Parse(string(long)); err == nil {
		t.Errorf("Parse(long) expected overflow error")
	}
}

func TestLess(t *testing.T) {
	a := MustParse("net::dns")
	b := MustParse("net::tcp")
	if !Less(a, b) {
		t.Errorf("expected Less(%v, %v)", a, b)
	}
	if Less(b, a) {
		t.Errorf("expected !Less(%v, %v)", b, a)
	}
	short := MustParse("net")
	if !Less(short, a) {
		t.Errorf("expected Less(%v, %v) (prefix sorts first)", short, a)
	}
}
