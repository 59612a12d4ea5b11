package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/dataset"
	"github.com/mediatechlab/trendwatch/internal/normalize"
	"github.com/mediatechlab/trendwatch/internal/trends"
	"github.com/mediatechlab/trendwatch/internal/validate"
)

// Function adapters keep the fakes small.
type fetchFunc func(ctx context.Context, term string, window trends.FetchWindow) (trends.RawResponse, error)

func (f fetchFunc) Fetch(ctx context.Context, term string, window trends.FetchWindow) (trends.RawResponse, error) {
	return f(ctx, term, window)
}

type normalizeFunc func(term string, raw trends.RawResponse) ([]trends.TrendRecord, error)

func (f normalizeFunc) Normalize(term string, raw trends.RawResponse) ([]trends.TrendRecord, error) {
	return f(term, raw)
}

type validateFunc func(terms []string, records []trends.TrendRecord, window trends.FetchWindow) trends.ValidationReport

func (f validateFunc) Validate(terms []string, records []trends.TrendRecord, window trends.FetchWindow) trends.ValidationReport {
	return f(terms, records, window)
}

// stubWriter records what was written.
type stubWriter struct {
	mu      sync.Mutex
	batches [][]trends.TrendRecord
	err     error
}

func (w *stubWriter) WriteMerged(records []trends.TrendRecord) (trends.WriteSummary, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return trends.WriteSummary{}, w.err
	}
	w.batches = append(w.batches, records)
	return trends.WriteSummary{Written: len(records)}, nil
}

func (w *stubWriter) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

var okValidator = validateFunc(func([]string, []trends.TrendRecord, trends.FetchWindow) trends.ValidationReport {
	return trends.ValidationReport{Valid: true, Errors: []trends.Finding{}, Warnings: []trends.Finding{}}
})

// windowRecords builds one record per window day for a term.
func windowRecords(term string, window trends.FetchWindow, value int) []trends.TrendRecord {
	var out []trends.TrendRecord
	for _, d := range window.Dates() {
		v := value
		out = append(out, trends.TrendRecord{Term: term, Date: d, Geo: "US", Interest: &v})
	}
	return out
}

func execDate() time.Time {
	return time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC)
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	writer := &stubWriter{}
	var fetched []string
	runner := NewRunner(
		Config{Terms: []string{"vpn", "antivirus"}, Geo: "US", LookbackDays: 7},
		Deps{
			Fetcher: fetchFunc(func(_ context.Context, term string, _ trends.FetchWindow) (trends.RawResponse, error) {
				fetched = append(fetched, term)
				return trends.RawResponse(`{}`), nil
			}),
			Normalizer: normalizeFunc(func(term string, _ trends.RawResponse) ([]trends.TrendRecord, error) {
				w, _ := trends.ComputeWindow(execDate(), 7)
				return windowRecords(term, w, 40), nil
			}),
			Validator: okValidator,
			Writer:    writer,
			Log:       zap.NewNop(),
		},
	)

	report, err := runner.Run(context.Background(), execDate())
	require.NoError(t, err)
	require.Equal(t, []string{"vpn", "antivirus"}, fetched, "terms fetched in configured order")
	require.Equal(t, 14, report.RecordCount)
	require.Empty(t, report.TermErrors)
	require.True(t, report.Validation.Valid)
	require.Equal(t, 14, report.Write.Written)
	require.Len(t, report.Stats, 2)
	require.Equal(t, float64(40), *report.Stats["vpn"].Mean)
	require.Equal(t, 1, writer.calls())
}

func TestRunContinuesPastTermFailure(t *testing.T) {
	t.Parallel()

	exhausted := &trends.FetchExhaustedError{Term: "vpn", Attempts: 5, Err: errors.New("rate limited")}
	writer := &stubWriter{}
	runner := NewRunner(
		Config{Terms: []string{"vpn", "antivirus"}, Geo: "US", LookbackDays: 7},
		Deps{
			Fetcher: fetchFunc(func(_ context.Context, term string, _ trends.FetchWindow) (trends.RawResponse, error) {
				if term == "vpn" {
					return nil, exhausted
				}
				return trends.RawResponse(`{}`), nil
			}),
			Normalizer: normalizeFunc(func(term string, _ trends.RawResponse) ([]trends.TrendRecord, error) {
				w, _ := trends.ComputeWindow(execDate(), 7)
				return windowRecords(term, w, 40), nil
			}),
			Validator: validate.New("US", 0.5),
			Writer:    writer,
			Log:       zap.NewNop(),
		},
	)

	report, err := runner.Run(context.Background(), execDate())

	// The missing term surfaces as a coverage error, so the run fails
	// validation and nothing is written.
	var verr *trends.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, report.TermErrors, 1)
	require.Equal(t, "vpn", report.TermErrors[0].Term)
	require.Equal(t, "fetch", report.TermErrors[0].Stage)
	require.Equal(t, 7, report.RecordCount, "healthy term still collected")
	require.False(t, report.Validation.Valid)
	require.Equal(t, 0, writer.calls(), "invalid runs must not write")
}

func TestRunFailFastStopsAtFirstTermError(t *testing.T) {
	t.Parallel()

	var fetched []string
	runner := NewRunner(
		Config{Terms: []string{"vpn", "antivirus"}, Geo: "US", LookbackDays: 7, FailFast: true},
		Deps{
			Fetcher: fetchFunc(func(_ context.Context, term string, _ trends.FetchWindow) (trends.RawResponse, error) {
				fetched = append(fetched, term)
				return nil, &trends.FetchExhaustedError{Term: term, Attempts: 5, Err: errors.New("boom")}
			}),
			Normalizer: normalizeFunc(func(string, trends.RawResponse) ([]trends.TrendRecord, error) { return nil, nil }),
			Validator:  okValidator,
			Writer:     &stubWriter{},
			Log:        zap.NewNop(),
		},
	)

	_, err := runner.Run(context.Background(), execDate())
	var exhausted *trends.FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, []string{"vpn"}, fetched, "second term must not be fetched")
}

func TestRunAttributesNormalizeFailures(t *testing.T) {
	t.Parallel()

	runner := NewRunner(
		Config{Terms: []string{"vpn"}, Geo: "US", LookbackDays: 7},
		Deps{
			Fetcher: fetchFunc(func(_ context.Context, _ string, _ trends.FetchWindow) (trends.RawResponse, error) {
				return trends.RawResponse(`{"unexpected": true}`), nil
			}),
			Normalizer: normalizeFunc(func(term string, _ trends.RawResponse) ([]trends.TrendRecord, error) {
				return nil, &trends.MalformedResponseError{Term: term, Reason: "missing interest_over_time"}
			}),
			Validator: validate.New("US", 0.5),
			Writer:    &stubWriter{},
			Log:       zap.NewNop(),
		},
	)

	report, err := runner.Run(context.Background(), execDate())
	require.Error(t, err)
	require.Len(t, report.TermErrors, 1)
	require.Equal(t, "normalize", report.TermErrors[0].Stage)
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Fetcher:    fetchFunc(func(context.Context, string, trends.FetchWindow) (trends.RawResponse, error) { return nil, nil }),
		Normalizer: normalizeFunc(func(string, trends.RawResponse) ([]trends.TrendRecord, error) { return nil, nil }),
		Validator:  okValidator,
		Writer:     &stubWriter{},
		Log:        zap.NewNop(),
	}

	_, err := NewRunner(Config{Terms: nil, LookbackDays: 7}, deps).Run(context.Background(), execDate())
	require.ErrorIs(t, err, trends.ErrInvalidConfig)

	_, err = NewRunner(Config{Terms: []string{"vpn"}, LookbackDays: 0}, deps).Run(context.Background(), execDate())
	require.ErrorIs(t, err, trends.ErrInvalidConfig)
}

func TestRunPropagatesWriteFailure(t *testing.T) {
	t.Parallel()

	writeErr := &trends.WriteError{Path: "data/trends.csv", Err: errors.New("disk full")}
	runner := NewRunner(
		Config{Terms: []string{"vpn"}, Geo: "US", LookbackDays: 7},
		Deps{
			Fetcher: fetchFunc(func(context.Context, string, trends.FetchWindow) (trends.RawResponse, error) {
				return trends.RawResponse(`{}`), nil
			}),
			Normalizer: normalizeFunc(func(term string, _ trends.RawResponse) ([]trends.TrendRecord, error) {
				w, _ := trends.ComputeWindow(execDate(), 7)
				return windowRecords(term, w, 10), nil
			}),
			Validator: okValidator,
			Writer:    &stubWriter{err: writeErr},
			Log:       zap.NewNop(),
		},
	)

	report, err := runner.Run(context.Background(), execDate())
	var we *trends.WriteError
	require.ErrorAs(t, err, &we)
	require.True(t, report.Validation.Valid, "validation outcome still reported")
}

func TestRunAbortsOnContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var fetched int
	runner := NewRunner(
		Config{Terms: []string{"vpn", "antivirus"}, Geo: "US", LookbackDays: 7},
		Deps{
			Fetcher: fetchFunc(func(ctx context.Context, _ string, _ trends.FetchWindow) (trends.RawResponse, error) {
				fetched++
				cancel()
				return nil, ctx.Err()
			}),
			Normalizer: normalizeFunc(func(string, trends.RawResponse) ([]trends.TrendRecord, error) { return nil, nil }),
			Validator:  okValidator,
			Writer:     &stubWriter{},
			Log:        zap.NewNop(),
		},
	)

	_, err := runner.Run(ctx, execDate())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fetched, "cancellation is not a per-term failure to skip past")
}

// serpPayload fabricates a provider response covering the window.
func serpPayload(term string, window trends.FetchWindow, values []int) trends.RawResponse {
	payload := `{"search_metadata":{"created_at":"2024-01-08 06:00:00 UTC"},"interest_over_time":{"timeline_data":[`
	for i, d := range window.Dates() {
		if i > 0 {
			payload += ","
		}
		payload += fmt.Sprintf(
			`{"timestamp":"%d","values":[{"query":"%s","value":"%d","extracted_value":%d}]}`,
			d.Unix(), term, values[i%len(values)], values[i%len(values)])
	}
	payload += `]}}`
	return trends.RawResponse(payload)
}

func TestRunEndToEndWithRealComponents(t *testing.T) {
	t.Parallel()

	window, err := trends.ComputeWindow(execDate(), 7)
	require.NoError(t, err)

	store := dataset.NewStore(filepath.Join(t.TempDir(), "trends.csv"), zap.NewNop())
	cfg := Config{Terms: []string{"vpn", "antivirus"}, Geo: "US", LookbackDays: 7}
	deps := Deps{
		Fetcher: fetchFunc(func(_ context.Context, term string, w trends.FetchWindow) (trends.RawResponse, error) {
			return serpPayload(term, w, []int{30, 50, 70}), nil
		}),
		Normalizer: normalize.New("US", fixedClock{t: execDate()}),
		Validator:  validate.New("US", 0.5),
		Writer:     store,
		Log:        zap.NewNop(),
	}
	runner := NewRunner(cfg, deps)

	first, err := runner.Run(context.Background(), execDate())
	require.NoError(t, err)
	require.Equal(t, 14, first.RecordCount)
	require.Equal(t, trends.WriteSummary{Written: 14, Replaced: 0}, first.Write)
	require.Equal(t, 7, first.Stats["vpn"].Samples)
	require.Equal(t, 70, *first.Stats["vpn"].Max)
	require.Equal(t, 30, *first.Stats["vpn"].Min)

	// Re-running the same execution date replaces, never duplicates.
	second, err := runner.Run(context.Background(), execDate())
	require.NoError(t, err)
	require.Equal(t, trends.WriteSummary{Written: 0, Replaced: 14}, second.Write)

	records, err := store.Load()
	require.NoError(t, err)
	require.Len(t, records, 14)
	for _, rec := range records {
		require.True(t, window.Contains(rec.Date))
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
