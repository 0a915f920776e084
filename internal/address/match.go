package address

import (
	"sort"

	"github.com/odgsully/renoscore/internal/model"
)

// Index holds the three lookup tables used for tiered matching. When two
// records share a key the later record wins.
type Index struct {
	exact      map[string]*model.PropertyRecord
	normalized map[string]*model.PropertyRecord
	streetKey  map[string]*model.PropertyRecord
}

// NewIndex builds an Index over records. The index points into records and
// must not outlive it.
func NewIndex(records []model.PropertyRecord) *Index {
	idx := &Index{
		exact:      make(map[string]*model.PropertyRecord, len(records)),
		normalized: make(map[string]*model.PropertyRecord, len(records)),
		streetKey:  make(map[string]*model.PropertyRecord, len(records)),
	}
	for i := range records {
		rec := &records[i]
		if rec.Address == "" {
			continue
		}
		idx.exact[exactKey(rec.Address)] = rec
		idx.normalized[Normalize(rec.Address)] = rec
		if key := StreetKey(rec.Address); key != "" {
			idx.streetKey[key] = rec
		}
	}
	return idx
}

// Len reports the number of distinct exact keys.
func (idx *Index) Len() int { return len(idx.exact) }

// Lookup resolves addr through the exact, normalized and street-key tiers in
// that order.
func (idx *Index) Lookup(addr string) (*model.PropertyRecord, model.MatchTier, bool) {
	if rec, ok := idx.exact[exactKey(addr)]; ok {
		return rec, model.MatchExact, true
	}
	return idx.lookupLoose(addr, model.MatchNormalized, model.MatchStreetKey)
}

func (idx *Index) lookupLoose(addr string, normTier, keyTier model.MatchTier) (*model.PropertyRecord, model.MatchTier, bool) {
	if rec, ok := idx.normalized[Normalize(addr)]; ok {
		return rec, normTier, true
	}
	if key := StreetKey(addr); key != "" {
		if rec, ok := idx.streetKey[key]; ok {
			return rec, keyTier, true
		}
	}
	return nil, "", false
}

// Match resolves each extracted page address to a property record. Pages
// whose address resolves through no tier are left out.
func Match(pageAddresses map[int]string, records []model.PropertyRecord) model.AddressMatches {
	idx := NewIndex(records)
	out := make(model.AddressMatches, len(pageAddresses))
	for _, page := range sortedPages(pageAddresses) {
		text := pageAddresses[page]
		rec, tier, ok := idx.Lookup(text)
		if !ok {
			continue
		}
		out[page] = model.AddressMatch{
			PageNumber:     page,
			ExtractedText:  text,
			MatchedAddress: rec.Address,
			Tier:           tier,
			Record:         rec,
		}
	}
	return out
}

// AddProviderMatches resolves provider-reported addresses for pages missing
// from existing. Hits are tagged provider_detected. existing is not modified
// and pages already present are never replaced.
func AddProviderMatches(existing model.AddressMatches, providerAddresses map[int]string, records []model.PropertyRecord) model.AddressMatches {
	idx := NewIndex(records)
	out := existing
	for _, page := range sortedPages(providerAddresses) {
		if out.Has(page) {
			continue
		}
		text := providerAddresses[page]
		rec, _, ok := idx.lookupLoose(text, model.MatchProviderDetected, model.MatchProviderDetected)
		if !ok {
			continue
		}
		out = out.With(model.AddressMatch{
			PageNumber:     page,
			ExtractedText:  text,
			MatchedAddress: rec.Address,
			Tier:           model.MatchProviderDetected,
			Record:         rec,
		})
	}
	if out == nil {
		out = model.AddressMatches{}
	}
	return out
}

func sortedPages(m map[int]string) []int {
	pages := make([]int, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
