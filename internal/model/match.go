package model

// MatchMethod identifies the strategy that produced a match candidate.
type MatchMethod string

const (
	MethodExactURL      MatchMethod = "exact_url"
	MethodNormalizedURL MatchMethod = "normalized_url"
	MethodProductCode   MatchMethod = "product_code"
	MethodTitlePrice    MatchMethod = "title_price"
	MethodFuzzyTitle    MatchMethod = "fuzzy_title_price"
	MethodImageOverlap  MatchMethod = "image_overlap"
)

// URLBased reports whether the method relies on stable retailer identifiers
// (URLs or product codes) rather than content similarity.
func (m MatchMethod) URLBased() bool {
	switch m {
	case MethodExactURL, MethodNormalizedURL, MethodProductCode:
		return true
	}
	return false
}

// MatchCandidate is the ephemeral result of one matching attempt.
// Only method and confidence are persisted, as audit columns on the entry.
type MatchCandidate struct {
	Entry      *CatalogEntry `json:"-"`
	Product    *Product      `json:"product"`
	Method     MatchMethod   `json:"method"`
	Confidence float64       `json:"confidence"`
}
