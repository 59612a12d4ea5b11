package trends

import (
	"fmt"
	"time"
)

// ComputeWindow derives the fetch window for a run. The window ends the day
// before the execution date (the current day's data is not final) and spans
// lookbackDays inclusive days. Pure and deterministic: the same execution
// date always yields the same window.
func ComputeWindow(executionDate time.Time, lookbackDays int) (FetchWindow, error) {
	if lookbackDays <= 0 {
		return FetchWindow{}, fmt.Errorf("%w: lookback_days must be > 0, got %d", ErrInvalidConfig, lookbackDays)
	}
	end := Day(executionDate).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(lookbackDays - 1))
	return FetchWindow{Start: start, End: end}, nil
}
