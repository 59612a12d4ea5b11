// Package summary computes per-term descriptive statistics for run
// reports. Output is reporting-only and never feeds back into stored data.
package summary

import (
	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Aggregate returns mean, max, and min over the non-null interest values of
// each term present in records. A term whose values are all null gets nil
// aggregates instead of an error; its null count still reports how much
// data was missing.
func Aggregate(records []trends.TrendRecord) map[string]trends.TermStats {
	type acc struct {
		sum      int
		max, min int
		samples  int
		nulls    int
	}

	accs := make(map[string]*acc)
	for _, rec := range records {
		a := accs[rec.Term]
		if a == nil {
			a = &acc{}
			accs[rec.Term] = a
		}
		if rec.Interest == nil {
			a.nulls++
			continue
		}
		v := *rec.Interest
		if a.samples == 0 || v > a.max {
			a.max = v
		}
		if a.samples == 0 || v < a.min {
			a.min = v
		}
		a.sum += v
		a.samples++
	}

	stats := make(map[string]trends.TermStats, len(accs))
	for term, a := range accs {
		st := trends.TermStats{Samples: a.samples, Nulls: a.nulls}
		if a.samples > 0 {
			mean := float64(a.sum) / float64(a.samples)
			maxV, minV := a.max, a.min
			st.Mean = &mean
			st.Max = &maxV
			st.Min = &minV
		}
		stats[term] = st
	}
	return stats
}
