// Package reconcile merges provider-detected addresses back into the page
// mapping after scoring and builds the final pipeline result.
package reconcile

import (
	"sort"

	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/address"
	"github.com/odgsully/renoscore/internal/model"
)

// Input is everything the reconciler needs from earlier stages.
type Input struct {
	Scores        []model.PropertyScore
	Failures      []model.ScoringFailure
	PageAddresses map[int]string // extracted page text addresses
	Matches       model.AddressMatches
	Records       []model.PropertyRecord
	TotalPages    int
	Usage         model.Usage
}

// Output is the reconciled result plus the mapping after provider matches
// were added.
type Output struct {
	Result  *model.PipelineResult
	Matches model.AddressMatches
}

// Reconcile resolves scores that have no canonical address yet using the
// provider's detected addresses, and lists extracted addresses that no
// scored page accounts for. Inputs are not modified.
func Reconcile(in Input) Output {
	providerAddrs := make(map[int]string, len(in.Scores))
	for _, s := range in.Scores {
		if s.DetectedAddress != "" {
			providerAddrs[s.PageNumber] = s.DetectedAddress
		}
	}
	matches := address.AddProviderMatches(in.Matches, providerAddrs, in.Records)
	ordered := orderedMatches(matches)

	scores := make([]model.PropertyScore, len(in.Scores))
	copy(scores, in.Scores)
	resolved := 0
	for i := range scores {
		if scores[i].Resolved() {
			continue
		}
		m, ok := findMatch(ordered, scores[i].DetectedAddress)
		if !ok {
			continue
		}
		scores[i].Address = m.Record.Address
		scores[i].ParcelID = m.Record.ParcelID
		scores[i].MLSNumber = m.Record.MLSNumber
		scores[i].MatchTier = m.Tier
		resolved++
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].PageNumber < scores[j].PageNumber })

	failures := make([]model.ScoringFailure, len(in.Failures))
	copy(failures, in.Failures)
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].PageNumber < failures[j].PageNumber })

	unmatched := Unmatched(in.PageAddresses, scores)

	zap.L().Debug("reconcile: complete",
		zap.Int("provider_addresses", len(providerAddrs)),
		zap.Int("matches_before", len(in.Matches)),
		zap.Int("matches_after", len(matches)),
		zap.Int("backfilled", resolved),
		zap.Int("unmatched", len(unmatched)),
	)

	return Output{
		Matches: matches,
		Result: &model.PipelineResult{
			Scores:    scores,
			Failures:  failures,
			Unmatched: unmatched,
			Usage:     in.Usage,
			Stats: model.Stats{
				TotalPages: in.TotalPages,
				Scored:     len(scores),
				Failed:     len(failures),
				Unmatched:  len(unmatched),
			},
		},
	}
}

// findMatch scans matches with three comparisons in order: raw equality with
// the extracted text, normalized equality with the extracted text, and
// normalized equality with the record's own address. The first hit wins.
func findMatch(ordered []model.AddressMatch, detected string) (model.AddressMatch, bool) {
	if detected == "" {
		return model.AddressMatch{}, false
	}
	norm := address.Normalize(detected)

	comparisons := []func(model.AddressMatch) bool{
		func(m model.AddressMatch) bool { return m.ExtractedText == detected },
		func(m model.AddressMatch) bool {
			return norm != "" && address.Normalize(m.ExtractedText) == norm
		},
		func(m model.AddressMatch) bool {
			return norm != "" && address.Normalize(m.Record.Address) == norm
		},
	}
	for _, eq := range comparisons {
		for _, m := range ordered {
			if m.Record != nil && eq(m) {
				return m, true
			}
		}
	}
	return model.AddressMatch{}, false
}

// Unmatched returns the extracted addresses, in page order, whose normalized
// form equals no scored page's normalized detected address.
func Unmatched(pageAddresses map[int]string, scores []model.PropertyScore) []string {
	detected := make(map[string]bool, len(scores))
	for _, s := range scores {
		if n := address.Normalize(s.DetectedAddress); n != "" {
			detected[n] = true
		}
	}

	pages := make([]int, 0, len(pageAddresses))
	for p := range pageAddresses {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	out := make([]string, 0)
	for _, p := range pages {
		addr := pageAddresses[p]
		if !detected[address.Normalize(addr)] {
			out = append(out, addr)
		}
	}
	return out
}

func orderedMatches(matches model.AddressMatches) []model.AddressMatch {
	out := make([]model.AddressMatch, 0, len(matches))
	for _, p := range matches.Pages() {
		out = append(out, matches[p])
	}
	return out
}
