package record

// #region citation
// Citation is a single source reference attached to a record's narrative.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Field string `json:"field,omitempty"` // record field the citation supports, empty = narrative at large
}

// #endregion citation

// #region variant
// Variant is an alternate generated rendition of a record's narrative,
// produced under a different lens. Variant-aware validators re-check
// each variant independently.
type Variant struct {
	Tag       string     `json:"tag"`
	Narrative string     `json:"narrative"`
	Citations []Citation `json:"citations,omitempty"`
}

// #endregion variant

// #region record
// Record is one machine-generated per-entity evaluation: a numeric score,
// the structured source fields that fed it, a narrative, and citations.
type Record struct {
	ID           string             `json:"id"`
	Score        float64            `json:"score"`
	SourceFields map[string]float64 `json:"source_fields,omitempty"`
	Narrative    string             `json:"narrative,omitempty"`
	Citations    []Citation         `json:"citations,omitempty"`
	Variants     []Variant          `json:"variants,omitempty"`
}

// TierValue returns the value of the named numeric field and whether it
// is present. The score itself is addressable as "score".
func (r Record) TierValue(field string) (float64, bool) {
	if field == "score" {
		return r.Score, true
	}
	v, ok := r.SourceFields[field]
	return v, ok
}

// #endregion record
