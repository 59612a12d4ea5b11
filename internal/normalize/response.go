package normalize

// Wire shapes for the provider's interest-over-time payload. The response
// nests one timeline point per date, each carrying one value entry per
// queried term. Pointer fields distinguish a key that is absent from one
// that is present but empty; the two cases mean different things.
type response struct {
	SearchMetadata   *searchMetadata   `json:"search_metadata"`
	InterestOverTime *interestOverTime `json:"interest_over_time"`
}

type searchMetadata struct {
	CreatedAt string `json:"created_at"`
}

type interestOverTime struct {
	TimelineData []timelinePoint `json:"timeline_data"`
}

type timelinePoint struct {
	Date      string          `json:"date"`
	Timestamp string          `json:"timestamp"`
	Values    []timelineValue `json:"values"`
}

type timelineValue struct {
	Query string `json:"query"`
	// Value is the display string ("45", "<1"); ExtractedValue is the
	// numeric score. The provider omits ExtractedValue when it has
	// insufficient data for the date.
	Value          string `json:"value"`
	ExtractedValue *int   `json:"extracted_value"`
}
