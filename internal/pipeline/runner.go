// Package pipeline orchestrates one end-to-end ingestion run: window
// computation, per-term fetch and normalize, validation, the deduped
// dataset write, and the summary statistics for the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/metrics"
	"github.com/mediatechlab/trendwatch/internal/summary"
	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Config holds the run parameters shared by every execution.
type Config struct {
	// Terms is the ordered set of search terms; identity is case-sensitive.
	Terms []string
	// Geo is the region code passed to validation.
	Geo string
	// LookbackDays is the window length L; the window ends the day before
	// the execution date.
	LookbackDays int
	// FailFast aborts the run on the first per-term failure instead of
	// recording it and letting the coverage check flag the gap.
	FailFast bool
}

// Validator checks a run's records and reports findings.
type Validator interface {
	Validate(expectedTerms []string, records []trends.TrendRecord, window trends.FetchWindow) trends.ValidationReport
}

// DatasetWriter merges records into the persisted dataset.
type DatasetWriter interface {
	WriteMerged(records []trends.TrendRecord) (trends.WriteSummary, error)
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Fetcher    trends.Fetcher
	Normalizer trends.Normalizer
	Validator  Validator
	Writer     DatasetWriter
	Log        *zap.Logger
}

// Runner executes the pipeline stages sequentially for one run. Per-term
// fetch and normalize are side-effect-free, so they are safe to parallelize
// later; nothing in the run shares mutable state across terms.
type Runner struct {
	cfg  Config
	deps Deps
}

// NewRunner builds a Runner. Configuration is validated per run, not here,
// so a Runner can outlive config reloads.
func NewRunner(cfg Config, deps Deps) *Runner {
	return &Runner{cfg: cfg, deps: deps}
}

// Window computes the fetch window for an execution date under the
// configured lookback.
func (r *Runner) Window(executionDate time.Time) (trends.FetchWindow, error) {
	return trends.ComputeWindow(executionDate, r.cfg.LookbackDays)
}

// Run executes one full pipeline pass. The returned report is meaningful
// even when err is non-nil: a failed validation still reports its findings
// and any per-term errors collected along the way.
func (r *Runner) Run(ctx context.Context, executionDate time.Time) (trends.RunReport, error) {
	if len(r.cfg.Terms) == 0 {
		return trends.RunReport{}, fmt.Errorf("%w: no search terms configured", trends.ErrInvalidConfig)
	}
	window, err := r.Window(executionDate)
	if err != nil {
		return trends.RunReport{}, err
	}

	log := r.deps.Log
	log.Info("run started",
		zap.String("execution_date", trends.Day(executionDate).Format(trends.DateLayout)),
		zap.String("window", window.String()),
		zap.Strings("terms", r.cfg.Terms),
		zap.String("geo", r.cfg.Geo))

	var (
		all      []trends.TrendRecord
		termErrs []trends.TermError
	)
	for _, term := range r.cfg.Terms {
		records, err := r.collectTerm(ctx, term, window)
		if err != nil {
			if ctxErr(err) {
				return trends.RunReport{TermErrors: termErrs}, err
			}
			if r.cfg.FailFast {
				return trends.RunReport{TermErrors: termErrs}, err
			}
			termErrs = append(termErrs, trends.TermError{
				Term:    term,
				Stage:   stageOf(err),
				Message: err.Error(),
			})
			log.Warn("term failed, continuing with partial coverage",
				zap.String("term", term),
				zap.String("stage", stageOf(err)),
				zap.Error(err))
			continue
		}
		log.Info("term collected", zap.String("term", term), zap.Int("records", len(records)))
		all = append(all, records...)
	}

	report := trends.RunReport{
		RecordCount: len(all),
		TermErrors:  termErrs,
	}

	report.Validation = r.deps.Validator.Validate(r.cfg.Terms, all, window)
	countFindings(report.Validation)
	for _, w := range report.Validation.Warnings {
		log.Warn("validation warning", zap.String("check", string(w.Check)), zap.String("message", w.Message))
	}
	if !report.Validation.Valid {
		log.Error("validation failed, dataset not written",
			zap.Int("errors", len(report.Validation.Errors)),
			zap.Int("warnings", len(report.Validation.Warnings)))
		return report, &trends.ValidationError{Report: report.Validation}
	}

	writeSum, err := r.deps.Writer.WriteMerged(all)
	if err != nil {
		return report, err
	}
	report.Write = writeSum
	metrics.ObserveWrite(writeSum.Written, writeSum.Replaced)

	report.Stats = summary.Aggregate(all)
	log.Info("run finished",
		zap.Int("records", report.RecordCount),
		zap.Int("written", writeSum.Written),
		zap.Int("replaced", writeSum.Replaced),
		zap.Any("stats", report.Stats))
	return report, nil
}

// collectTerm runs the fetch and normalize stages for one term.
func (r *Runner) collectTerm(ctx context.Context, term string, window trends.FetchWindow) ([]trends.TrendRecord, error) {
	raw, err := r.deps.Fetcher.Fetch(ctx, term, window)
	if err != nil {
		return nil, err
	}
	records, err := r.deps.Normalizer.Normalize(term, raw)
	if err != nil {
		return nil, err
	}
	metrics.AddNormalizedRecords(len(records))
	return records, nil
}

// stageOf attributes a per-term failure to its pipeline stage.
func stageOf(err error) string {
	var malformed *trends.MalformedResponseError
	if errors.As(err, &malformed) {
		return "normalize"
	}
	return "fetch"
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func countFindings(report trends.ValidationReport) {
	for _, f := range report.Errors {
		metrics.IncValidationFinding(string(f.Check), "error")
	}
	for _, f := range report.Warnings {
		metrics.IncValidationFinding(string(f.Check), "warning")
	}
}
