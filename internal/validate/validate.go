// Package validate runs the data-quality checks over one run's normalized
// records. Four independent checks each contribute findings: schema and
// coverage problems are errors, null-density and date-gap problems are
// warnings. The report is deterministic: checks run in a fixed order and
// each orders its findings by term, then date.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// DefaultNullDensityThreshold is the null fraction per term above which the
// data is considered degraded.
const DefaultNullDensityThreshold = 0.5

// Validator checks records against the configured region and a
// null-density threshold. It is stateless across calls.
type Validator struct {
	geo       string
	threshold float64
}

// New returns a Validator for the given region. Thresholds outside (0, 1]
// fall back to the default.
func New(geo string, nullDensityThreshold float64) *Validator {
	if nullDensityThreshold <= 0 || nullDensityThreshold > 1 {
		nullDensityThreshold = DefaultNullDensityThreshold
	}
	return &Validator{geo: geo, threshold: nullDensityThreshold}
}

// Validate runs all checks over records and reports. Valid is false iff at
// least one error-severity finding was recorded; warnings never invalidate
// a run on their own.
func (v *Validator) Validate(expectedTerms []string, records []trends.TrendRecord, window trends.FetchWindow) trends.ValidationReport {
	errs := []trends.Finding{}
	errs = append(errs, checkSchema(records, window, v.geo)...)
	errs = append(errs, checkCoverage(expectedTerms, records)...)

	warnings := []trends.Finding{}
	warnings = append(warnings, checkNullDensity(records, v.threshold)...)
	warnings = append(warnings, checkDateGap(records, window)...)

	return trends.ValidationReport{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// checkSchema verifies each record individually: a non-empty term, the
// configured region, a date inside the run's window, and an interest score
// in [0,100] when present.
func checkSchema(records []trends.TrendRecord, window trends.FetchWindow, geo string) []trends.Finding {
	sorted := append([]trends.TrendRecord(nil), records...)
	trends.SortRecords(sorted)

	var findings []trends.Finding
	for _, rec := range sorted {
		date := rec.Date.Format(trends.DateLayout)
		if strings.TrimSpace(rec.Term) == "" {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckSchema,
				Code:    "empty_term",
				Message: fmt.Sprintf("record at %s has an empty search term", date),
			})
		}
		if rec.Geo != geo {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckSchema,
				Code:    "region_mismatch",
				Term:    rec.Term,
				Message: fmt.Sprintf("record (%s, %s): region %q does not match configured %q", rec.Term, date, rec.Geo, geo),
			})
		}
		if !window.Contains(rec.Date) {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckSchema,
				Code:    "date_out_of_window",
				Term:    rec.Term,
				Message: fmt.Sprintf("record (%s, %s): date outside window %s", rec.Term, date, window),
			})
		}
		if rec.Interest != nil && (*rec.Interest < 0 || *rec.Interest > 100) {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckSchema,
				Code:    "interest_out_of_range",
				Term:    rec.Term,
				Message: fmt.Sprintf("record (%s, %s): interest %d outside [0,100]", rec.Term, date, *rec.Interest),
			})
		}
	}
	return findings
}

// checkCoverage reports an error for every expected term with zero records.
// A missing term means fetch or normalize failed wholesale for it.
func checkCoverage(expectedTerms []string, records []trends.TrendRecord) []trends.Finding {
	present := make(map[string]bool, len(expectedTerms))
	for _, rec := range records {
		present[rec.Term] = true
	}

	terms := append([]string(nil), expectedTerms...)
	sort.Strings(terms)

	var findings []trends.Finding
	for _, term := range terms {
		if !present[term] {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckCoverage,
				Code:    "term_missing",
				Term:    term,
				Message: fmt.Sprintf("expected term %q produced no records", term),
			})
		}
	}
	return findings
}

// checkNullDensity warns when the null fraction of a term's records exceeds
// the threshold. Terms with zero records are the coverage check's concern.
func checkNullDensity(records []trends.TrendRecord, threshold float64) []trends.Finding {
	type tally struct{ total, nulls int }
	byTerm := make(map[string]*tally)
	for _, rec := range records {
		t := byTerm[rec.Term]
		if t == nil {
			t = &tally{}
			byTerm[rec.Term] = t
		}
		t.total++
		if rec.Interest == nil {
			t.nulls++
		}
	}

	var findings []trends.Finding
	for _, term := range sortedKeys(byTerm) {
		t := byTerm[term]
		density := float64(t.nulls) / float64(t.total)
		if density > threshold {
			findings = append(findings, trends.Finding{
				Check: trends.CheckNullDensity,
				Code:  "null_density",
				Term:  term,
				Message: fmt.Sprintf("term %q: %d of %d values null (%.0f%% > %.0f%%)",
					term, t.nulls, t.total, density*100, threshold*100),
			})
		}
	}
	return findings
}

// checkDateGap warns, per term with records, about window dates that have
// no record at all. Null-valued records count as present; the provider
// acknowledged the date.
func checkDateGap(records []trends.TrendRecord, window trends.FetchWindow) []trends.Finding {
	seen := make(map[string]map[string]bool)
	for _, rec := range records {
		dates := seen[rec.Term]
		if dates == nil {
			dates = make(map[string]bool)
			seen[rec.Term] = dates
		}
		dates[rec.Date.Format(trends.DateLayout)] = true
	}

	var findings []trends.Finding
	for _, term := range sortedKeys(seen) {
		var missing []string
		for _, d := range window.Dates() {
			if day := d.Format(trends.DateLayout); !seen[term][day] {
				missing = append(missing, day)
			}
		}
		if len(missing) > 0 {
			findings = append(findings, trends.Finding{
				Check:   trends.CheckDateGap,
				Code:    "date_gap",
				Term:    term,
				Message: fmt.Sprintf("term %q: missing dates %s", term, strings.Join(missing, ", ")),
			})
		}
	}
	return findings
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
