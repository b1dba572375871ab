package pathbuf

import "testing"

func TestPushPopRoundTrip(t *testing.T) {
	b, err := Init("/home/user")
	if err != nil {
		t.Fatal(err)
	}
	before := b.String()
	if err := b.Push("project"); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Pop(); !ok {
		t.Fatal("Pop() returned ok=false")
	}
	if got := b.String(); got != before {
		t.Errorf("push(x); pop() not a no-op: got %q, want %q", got, before)
	}
}

func TestDotDotOnRootIsNoop(t *testing.T) {
	b, err := Init("/")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Push(".."); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "/"; got != want {
		t.Errorf("push(..) on root = %q, want %q", got, want)
	}
}

func TestDotDotOnEmptyYieldsDotDot(t *testing.T) {
	b, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Push(".."); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), ".."; got != want {
		t.Errorf("push(..) on empty = %q, want %q", got, want)
	}
}

func TestDotDotChain(t *testing.T) {
	b, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Push("..", ".."); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "../.."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEmptyBufferStringIsDot(t *testing.T) {
	b, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizationCollapsesSegments(t *testing.T) {
	b, err := Init("/a//b/./c")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "/a/b/c"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPopThenAscend(t *testing.T) {
	b, err := Init("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Push(".."); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "/a/b"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOverflow(t *testing.T) {
	long := make([]byte, MaxPath+10)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Init("/" + string(long)); err == nil {
		t.Errorf("expected overflow error")
	}
}

func TestPeekAndParent(t *testing.T) {
	b, err := Init("/a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := b.Peek(); !ok || got != "c" {
		t.Errorf("Peek() = %q, %v, want \"c\", true", got, ok)
	}
	parent := b.Parent()
	if got, want := parent.String(), "/a/b"; got != want {
		t.Errorf("Parent().String() = %q, want %q", got, want)
	}
	// Parent() must not mutate b.
	if got, want := b.String(), "/a/b/c"; got != want {
		t.Errorf("Parent() mutated receiver: got %q, want %q", got, want)
	}
}

func TestIterForwardAbsolute(t *testing.T) {
	b, err := Init("/a/b")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	b.Iter(Forward)(func(s string) bool {
		got = append(got, s)
		return true
	})
	want := []string{"/", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestIterReverse(t *testing.T) {
	b, err := Init("a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	b.Iter(Reverse)(func(s string) bool {
		got = append(got, s)
		return true
	})
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}
