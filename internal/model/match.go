package model

import "sort"

// MatchTier records how an address was resolved to a property record,
// ordered from strongest to weakest.
type MatchTier string

const (
	MatchExact            MatchTier = "exact"
	MatchNormalized       MatchTier = "normalized"
	MatchStreetKey        MatchTier = "street_key"
	MatchProviderDetected MatchTier = "provider_detected"
)

// AddressMatch resolves one page's address text to a property record.
type AddressMatch struct {
	PageNumber     int             `json:"page_number"`
	ExtractedText  string          `json:"extracted_text"`
	MatchedAddress string          `json:"matched_address"`
	Tier           MatchTier       `json:"tier"`
	Record         *PropertyRecord `json:"-"`
}

// AddressMatches maps page numbers to matches. Values are treated as
// immutable: With returns a new mapping instead of writing in place.
type AddressMatches map[int]AddressMatch

// Has reports whether page already has a match.
func (m AddressMatches) Has(page int) bool {
	_, ok := m[page]
	return ok
}

// With returns a copy of m with match added under its page number.
func (m AddressMatches) With(match AddressMatch) AddressMatches {
	out := make(AddressMatches, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[match.PageNumber] = match
	return out
}

// Pages returns the matched page numbers in ascending order.
func (m AddressMatches) Pages() []int {
	pages := make([]int, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
