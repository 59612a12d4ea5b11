// Package normalize flattens raw provider payloads into uniform trend
// records. All knowledge of the provider's response shape lives here, so a
// provider-side format change touches exactly one package.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Timestamp formats seen in provider payloads.
const (
	createdAtLayout = "2006-01-02 15:04:05 MST"
	pointDateLayout = "Jan 2, 2006"
)

// Normalizer turns one raw payload into records for one term. A payload
// whose timeline is present but empty yields zero records and no error; a
// payload missing the timeline structure entirely is malformed. The two
// must not be conflated or the coverage check downstream loses its signal.
type Normalizer struct {
	geo   string
	clock trends.Clock
}

// New returns a Normalizer stamping records with the configured region.
// The clock supplies RetrievedAt when the payload carries no usable
// creation time.
func New(geo string, clk trends.Clock) *Normalizer {
	return &Normalizer{geo: geo, clock: clk}
}

// Normalize flattens raw into one record per timeline date, ascending by
// date. A date the provider reports without a value becomes a record with
// nil Interest; the date slot is kept so gap analysis can see it.
func (n *Normalizer) Normalize(term string, raw trends.RawResponse) ([]trends.TrendRecord, error) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &trends.MalformedResponseError{Term: term, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if resp.InterestOverTime == nil {
		return nil, &trends.MalformedResponseError{Term: term, Reason: "missing interest_over_time"}
	}
	if resp.InterestOverTime.TimelineData == nil {
		return nil, &trends.MalformedResponseError{Term: term, Reason: "missing timeline_data"}
	}

	retrievedAt := n.retrievedAt(resp.SearchMetadata)

	records := make([]trends.TrendRecord, 0, len(resp.InterestOverTime.TimelineData))
	for i, point := range resp.InterestOverTime.TimelineData {
		date, err := pointDate(point)
		if err != nil {
			return nil, &trends.MalformedResponseError{
				Term:   term,
				Reason: fmt.Sprintf("timeline point %d: %v", i, err),
			}
		}
		records = append(records, trends.TrendRecord{
			Term:        term,
			Date:        date,
			Geo:         n.geo,
			Interest:    pointInterest(term, point),
			RetrievedAt: retrievedAt,
		})
	}
	trends.SortRecords(records)
	return records, nil
}

// retrievedAt prefers the provider's own creation timestamp and falls back
// to the local clock.
func (n *Normalizer) retrievedAt(meta *searchMetadata) time.Time {
	if meta != nil && meta.CreatedAt != "" {
		if t, err := time.Parse(createdAtLayout, meta.CreatedAt); err == nil {
			return t.UTC()
		}
	}
	return n.clock.Now().UTC()
}

// pointDate resolves a timeline point to a calendar day. The epoch
// timestamp is authoritative; the display date is a fallback for payloads
// that omit it.
func pointDate(point timelinePoint) (time.Time, error) {
	if point.Timestamp != "" {
		sec, err := strconv.ParseInt(point.Timestamp, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q", point.Timestamp)
		}
		return trends.Day(time.Unix(sec, 0)), nil
	}
	if point.Date != "" {
		t, err := time.Parse(pointDateLayout, point.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad date %q", point.Date)
		}
		return trends.Day(t), nil
	}
	return time.Time{}, fmt.Errorf("no timestamp or date")
}

// pointInterest picks the value entry for the requested term. Single-term
// requests carry exactly one entry; the query match guards against the
// provider echoing entries for other terms first.
func pointInterest(term string, point timelinePoint) *int {
	for _, v := range point.Values {
		if v.Query == term {
			return v.ExtractedValue
		}
	}
	if len(point.Values) > 0 {
		return point.Values[0].ExtractedValue
	}
	return nil
}
