package ingest

// TemporalExtent is the start/end pair held under temporal_extent.
type TemporalExtent struct {
	StartDate *string `json:"startdate"`
	EndDate   *string `json:"enddate"`
}

// TemporalExtentOf reads the extent from a document. Non-string values are
// reported as absent.
func TemporalExtentOf(doc Document) (TemporalExtent, bool) {
	obj, ok := doc[FieldTemporalExtent].(map[string]any)
	if !ok {
		return TemporalExtent{}, false
	}
	var te TemporalExtent
	if s, ok := obj[FieldStartDate].(string); ok {
		te.StartDate = &s
	}
	if s, ok := obj[FieldEndDate].(string); ok {
		te.EndDate = &s
	}
	return te, true
}
