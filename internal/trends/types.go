package trends

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the ISO-8601 day format used for record dates, CSV output,
// and identity keys.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC. All record and window dates are stored in
// this normalized form so equality and ordering never depend on wall-clock
// components or zone.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// TrendRecord is one row of output: the provider's interest score for a
// search term on a calendar day in a region. Interest is nil when the
// provider reported insufficient data for that day.
type TrendRecord struct {
	Term        string    `json:"search_term"`
	Date        time.Time `json:"date"`
	Geo         string    `json:"region"`
	Interest    *int      `json:"interest_value"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// RecordKey is the identity tuple used for deduplication. At most one
// persisted row exists per key; later writes replace earlier ones.
type RecordKey struct {
	Term string
	Date string
	Geo  string
}

// Key returns the record's identity key.
func (r TrendRecord) Key() RecordKey {
	return RecordKey{Term: r.Term, Date: r.Date.Format(DateLayout), Geo: r.Geo}
}

// Less orders records ascending by (term, date) for deterministic output.
func (r TrendRecord) Less(other TrendRecord) bool {
	if r.Term != other.Term {
		return r.Term < other.Term
	}
	return r.Date.Before(other.Date)
}

// SortRecords sorts records in place ascending by (term, date).
func SortRecords(records []TrendRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Less(records[j]) })
}

// FetchWindow is the inclusive day range requested from the provider.
// Both bounds are midnight UTC.
type FetchWindow struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// Days returns the number of calendar days covered by the window.
func (w FetchWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Contains reports whether the day of t falls inside the window.
func (w FetchWindow) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Dates returns every day in the window in ascending order.
func (w FetchWindow) Dates() []time.Time {
	dates := make([]time.Time, 0, w.Days())
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// String renders the window in the provider's "start end" wire format.
func (w FetchWindow) String() string {
	return fmt.Sprintf("%s %s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// RawResponse is the opaque provider payload for one term and window. It is
// produced by the fetcher, consumed by the normalizer, and never persisted.
type RawResponse []byte

// CheckName identifies one of the validator's independent checks.
type CheckName string

// Validation checks, in report ordering.
const (
	CheckSchema      CheckName = "schema"
	CheckCoverage    CheckName = "coverage"
	CheckNullDensity CheckName = "null_density"
	CheckDateGap     CheckName = "date_gap"
)

// Finding is a single validation error or warning.
type Finding struct {
	Check   CheckName `json:"check"`
	Code    string    `json:"code"`
	Term    string    `json:"term,omitempty"`
	Message string    `json:"message"`
}

// ValidationReport is the outcome of one validation pass. Valid is false iff
// at least one error-severity finding was recorded; warnings alone do not
// invalidate a run.
type ValidationReport struct {
	Valid    bool      `json:"is_valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// WriteSummary reports the outcome of a deduped dataset write.
type WriteSummary struct {
	// Written counts records appended under a previously unseen identity key.
	Written int `json:"written"`
	// Replaced counts records that overwrote an existing identity key.
	Replaced int `json:"replaced"`
}

// TermStats holds descriptive statistics over the non-null interest values
// of one term. All three aggregates are nil when every value was null.
type TermStats struct {
	Mean    *float64 `json:"mean"`
	Max     *int     `json:"max"`
	Min     *int     `json:"min"`
	Samples int      `json:"samples"`
	Nulls   int      `json:"nulls"`
}

// TermError records a per-term fetch or normalize failure that the run
// continued past. The coverage check surfaces the resulting gap.
type TermError struct {
	Term    string `json:"term"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// RunReport is the full outcome of one pipeline run, returned to the caller
// and kept with the run record. It is reporting output only; it never feeds
// back into stored data.
type RunReport struct {
	RecordCount int                  `json:"record_count"`
	TermErrors  []TermError          `json:"term_errors,omitempty"`
	Validation  ValidationReport     `json:"validation"`
	Write       WriteSummary         `json:"write"`
	Stats       map[string]TermStats `json:"stats,omitempty"`
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run status values kept in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the bookkeeping record for one pipeline execution.
type Run struct {
	ID            string      `json:"id"`
	ExecutionDate time.Time   `json:"execution_date"`
	Window        FetchWindow `json:"window"`
	Status        RunStatus   `json:"status"`
	ErrorText     string      `json:"error_text,omitempty"`
	Submitted     time.Time   `json:"submitted_at"`
	Started       *time.Time  `json:"started_at,omitempty"`
	Finished      *time.Time  `json:"finished_at,omitempty"`
	Report        *RunReport  `json:"report,omitempty"`
}
