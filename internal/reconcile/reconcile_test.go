package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odgsully/renoscore/internal/address"
	"github.com/odgsully/renoscore/internal/model"
)

func records() []model.PropertyRecord {
	return []model.PropertyRecord{
		{Address: "4521 E Cactus Rd, Phoenix, AZ 85032", ParcelID: "214-01-001", MLSNumber: "6800001"},
		{Address: "88 W Saguaro Dr, Mesa, AZ 85201", ParcelID: "137-22-009", MLSNumber: "6800002"},
		{Address: "1200 N Central Ave, Phoenix, AZ 85004", ParcelID: "111-11-111"},
	}
}

func TestReconcile_ProviderAddressResolvesWithoutExtraction(t *testing.T) {
	recs := records()
	out := Reconcile(Input{
		Scores: []model.PropertyScore{
			{PageNumber: 1, DetectedAddress: "4521 East Cactus Road, Phoenix, AZ 85032", Score: 6},
		},
		PageAddresses: map[int]string{},
		Matches:       model.AddressMatches{},
		Records:       recs,
		TotalPages:    1,
	})

	require.Len(t, out.Result.Scores, 1)
	s := out.Result.Scores[0]
	assert.Equal(t, recs[0].Address, s.Address)
	assert.Equal(t, "214-01-001", s.ParcelID)
	assert.Equal(t, "6800001", s.MLSNumber)
	assert.Equal(t, model.MatchProviderDetected, s.MatchTier)
	assert.Equal(t, model.MatchProviderDetected, out.Matches[1].Tier)
	assert.Empty(t, out.Result.Unmatched)
}

func TestReconcile_ProviderUnitDoesNotResolveToBuilding(t *testing.T) {
	out := Reconcile(Input{
		Scores: []model.PropertyScore{
			{PageNumber: 1, DetectedAddress: "4521 E Cactus Rd Unit 2", Score: 6},
		},
		Records:    records(),
		TotalPages: 1,
	})

	require.Len(t, out.Result.Scores, 1)
	assert.False(t, out.Result.Scores[0].Resolved())
	assert.False(t, out.Matches.Has(1))
}

func TestReconcile_KeepsResolvedScores(t *testing.T) {
	recs := records()
	out := Reconcile(Input{
		Scores: []model.PropertyScore{
			{PageNumber: 2, Address: "already set", DetectedAddress: "4521 E Cactus Rd, Phoenix, AZ 85032"},
		},
		Records: recs,
	})
	assert.Equal(t, "already set", out.Result.Scores[0].Address)
}

func TestReconcile_FallbackComparisons(t *testing.T) {
	recs := records()
	saguaro := &recs[1]
	central := &recs[2]

	matches := model.AddressMatches{
		5: {PageNumber: 5, ExtractedText: "88 W Saguaro Dr, Mesa, AZ 85201", MatchedAddress: saguaro.Address, Tier: model.MatchExact, Record: saguaro},
		9: {PageNumber: 9, ExtractedText: "1200 N. Central Avenue", MatchedAddress: central.Address, Tier: model.MatchStreetKey, Record: central},
	}
	scores := []model.PropertyScore{
		// raw equality with page 5's extracted text
		{PageNumber: 3, DetectedAddress: "88 W Saguaro Dr, Mesa, AZ 85201"},
		// normalized equality with page 9's extracted text
		{PageNumber: 1, DetectedAddress: "1200 NORTH CENTRAL AVE"},
		// normalized equality with the record address
		{PageNumber: 4, DetectedAddress: "1200 North Central Avenue, Phoenix AZ 85004"},
		// no detected address
		{PageNumber: 7},
	}
	// Pages 3, 1, 4 would otherwise get provider matches of their own.
	for _, p := range []int{1, 3, 4} {
		matches = matches.With(model.AddressMatch{PageNumber: p, Tier: model.MatchExact})
	}

	out := Reconcile(Input{Scores: scores, Matches: matches, Records: recs, TotalPages: 9})
	got := map[int]model.PropertyScore{}
	for _, s := range out.Result.Scores {
		got[s.PageNumber] = s
	}

	assert.Equal(t, saguaro.Address, got[3].Address)
	assert.Equal(t, model.MatchExact, got[3].MatchTier)
	assert.Equal(t, central.Address, got[1].Address)
	assert.Equal(t, model.MatchStreetKey, got[1].MatchTier)
	assert.Equal(t, central.Address, got[4].Address)
	assert.False(t, got[7].Resolved())
}

func TestReconcile_FirstMatchWins(t *testing.T) {
	a := model.PropertyRecord{Address: "10 E Main St Unit A, Mesa, AZ 85201", ParcelID: "A"}
	b := model.PropertyRecord{Address: "10 E Main St Unit B, Mesa, AZ 85201", ParcelID: "B"}
	matches := model.AddressMatches{
		4: {PageNumber: 4, ExtractedText: "10 E Main St", Tier: model.MatchStreetKey, Record: &b},
		2: {PageNumber: 2, ExtractedText: "10 E Main St", Tier: model.MatchStreetKey, Record: &a},
		1: {PageNumber: 1, Tier: model.MatchExact},
	}

	out := Reconcile(Input{
		Scores:  []model.PropertyScore{{PageNumber: 1, DetectedAddress: "10 E Main St"}},
		Matches: matches,
		Records: []model.PropertyRecord{a, b},
	})
	assert.Equal(t, "A", out.Result.Scores[0].ParcelID, "matches are scanned in page order")
}

func TestReconcile_SortsAndCounts(t *testing.T) {
	in := Input{
		Scores: []model.PropertyScore{
			{PageNumber: 3, DetectedAddress: "1 A St"},
			{PageNumber: 1, DetectedAddress: "2 B St"},
		},
		Failures: []model.ScoringFailure{
			{PageNumber: 4, Reason: model.FailureAPI},
			{PageNumber: 2, Reason: model.FailureJSONParse},
		},
		PageAddresses: map[int]string{1: "2 B ST.", 2: "9 Z Rd", 3: "1 A Street", 4: "5 Q Ave"},
		TotalPages:    4,
		Usage:         model.Usage{InputTokens: 10, OutputTokens: 2},
	}
	before := append([]model.PropertyScore(nil), in.Scores...)

	res := Reconcile(in).Result

	assert.Equal(t, []int{1, 3}, []int{res.Scores[0].PageNumber, res.Scores[1].PageNumber})
	assert.Equal(t, []int{2, 4}, []int{res.Failures[0].PageNumber, res.Failures[1].PageNumber})
	assert.Equal(t, []string{"9 Z Rd", "5 Q Ave"}, res.Unmatched)
	assert.Equal(t, model.Stats{TotalPages: 4, Scored: 2, Failed: 2, Unmatched: 2}, res.Stats)
	assert.Equal(t, in.Usage, res.Usage)
	assert.Equal(t, before, in.Scores, "input is not modified")
}

func TestUnmatched_Empty(t *testing.T) {
	assert.NotNil(t, Unmatched(nil, nil))
	assert.Empty(t, Unmatched(map[int]string{1: "1 A St"}, []model.PropertyScore{{DetectedAddress: "1 a st"}}))
	assert.Equal(t, address.Normalize("1 A Street"), address.Normalize("1 A ST"))
}
