package trends

import (
	"errors"
	"testing"
	"time"
)

func TestComputeWindowEndsDayBeforeExecution(t *testing.T) {
	t.Parallel()

	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 12, 30, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 3, 1, 4, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
	for _, d := range dates {
		w, err := ComputeWindow(d, 7)
		if err != nil {
			t.Fatalf("ComputeWindow(%v, 7) error = %v", d, err)
		}
		wantEnd := Day(d).AddDate(0, 0, -1)
		if !w.End.Equal(wantEnd) {
			t.Fatalf("end = %v, want %v", w.End, wantEnd)
		}
		if got := w.End.Sub(w.Start); got != 6*24*time.Hour {
			t.Fatalf("window span = %v, want 6 days", got)
		}
		if w.Days() != 7 {
			t.Fatalf("Days() = %d, want 7", w.Days())
		}
	}
}

func TestComputeWindowIsDeterministic(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 5, 10, 15, 4, 5, 0, time.UTC)
	a, err := ComputeWindow(d, 30)
	if err != nil {
		t.Fatalf("ComputeWindow error = %v", err)
	}
	b, err := ComputeWindow(d, 30)
	if err != nil {
		t.Fatalf("ComputeWindow error = %v", err)
	}
	if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
		t.Fatalf("recomputation differs: %v vs %v", a, b)
	}
}

func TestComputeWindowRejectsNonPositiveLookback(t *testing.T) {
	t.Parallel()

	for _, l := range []int{0, -1, -30} {
		_, err := ComputeWindow(time.Now(), l)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("lookback %d: error = %v, want ErrInvalidConfig", l, err)
		}
	}
}

func TestWindowDatesAndContains(t *testing.T) {
	t.Parallel()

	w := FetchWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
	}
	dates := w.Dates()
	if len(dates) != 7 {
		t.Fatalf("Dates() returned %d days, want 7", len(dates))
	}
	if !dates[0].Equal(w.Start) || !dates[6].Equal(w.End) {
		t.Fatalf("Dates() bounds wrong: %v .. %v", dates[0], dates[6])
	}
	if !w.Contains(time.Date(2024, 1, 4, 18, 0, 0, 0, time.UTC)) {
		t.Fatal("expected mid-window timestamp to be contained")
	}
	if w.Contains(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected day after window to be excluded")
	}
	if got, want := w.String(), "2024-01-01 2024-01-07"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
