package random_test

import (
	"regexp"
	"testing"

	"github.com/artpar/recordbase/adapters/random"
)

var hexRE = regexp.MustCompile(`^[0-9a-f]+$`)

func TestReal_String(t *testing.T) {
	r := random.Real{}

	for _, n := range []int{1, 7, 40, 64} {
		s, err := r.String(n)
		if err != nil {
			t.Fatalf("String(%d): %v", n, err)
		}
		if len(s) != n {
			t.Errorf("String(%d) length = %d", n, len(s))
		}
		if !hexRE.MatchString(s) {
			t.Errorf("String(%d) = %q, not hex", n, s)
		}
	}
}

func TestReal_StringUnique(t *testing.T) {
	r := random.Real{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, _ := r.String(40)
		if seen[s] {
			t.Fatalf("duplicate token %q", s)
		}
		seen[s] = true
	}
}

func TestFake_QueuedTokens(t *testing.T) {
	f := random.NewFake().WithTokens("first", "second")

	for _, want := range []string{"first", "second"} {
		got, _ := f.String(40)
		if got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}

	got, _ := f.String(40)
	if len(got) != 40 || !hexRE.MatchString(got) {
		t.Errorf("fallback String() = %q", got)
	}
}

func TestFake_Deterministic(t *testing.T) {
	a, _ := random.NewFake().String(16)
	b, _ := random.NewFake().String(16)
	if a != b {
		t.Errorf("fresh fakes disagree: %q vs %q", a, b)
	}

	f := random.NewFake()
	x, _ := f.String(16)
	y, _ := f.String(16)
	if x == y {
		t.Errorf("successive calls returned the same value %q", x)
	}
}
