package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/recordbase/adapters/clock"
)

func TestReal_NowIsUTCAtStoragePrecision(t *testing.T) {
	got := clock.Real{}.Now()

	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
	if got.Nanosecond()%int(clock.Precision) != 0 {
		t.Errorf("Now() = %v has sub-microsecond digits", got)
	}
}

func TestFake_Frozen(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.FixedZone("CET", 3600))
	f := clock.NewFake(start)

	want := start.UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		if got := f.Now(); !got.Equal(want) {
			t.Fatalf("Now() = %v, want %v", got, want)
		}
	}
}

func TestFake_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := clock.NewFake(start)

	f.Advance(90 * time.Minute)
	if got := f.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("after Advance Now() = %v", got)
	}

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.Set(later)
	if got := f.Now(); !got.Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", got, later)
	}
}

func TestFake_WithStep(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := clock.NewFake(start).WithStep(time.Second)

	first, second := f.Now(), f.Now()
	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if got := second.Sub(first); got != time.Second {
		t.Errorf("step = %v, want 1s", got)
	}
}
