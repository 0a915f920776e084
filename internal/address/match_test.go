package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odgsully/renoscore/internal/model"
)

func testRecords() []model.PropertyRecord {
	return []model.PropertyRecord{
		{Address: "1234 W Example St", ParcelID: "101-01-001"},
		{Address: "55 North Oak Avenue", ParcelID: "101-01-002"},
		{Address: "88 Saguaro Dr Unit B, Phoenix, AZ 85001", ParcelID: "101-01-003"},
	}
}

func TestMatch_Tiers(t *testing.T) {
	records := testRecords()
	pages := map[int]string{
		1: " 1234 w example st ",
		2: "55 N Oak Ave",
		3: "88 Saguaro Drive Unit B Phoenix Arizona 85001",
		4: "999 Nowhere Rd",
	}

	got := Match(pages, records)

	require.Len(t, got, 3)
	assert.Equal(t, model.MatchExact, got[1].Tier)
	assert.Equal(t, model.MatchNormalized, got[2].Tier)
	assert.Equal(t, "55 North Oak Avenue", got[2].MatchedAddress)
	assert.Equal(t, model.MatchStreetKey, got[3].Tier)
	assert.Equal(t, "101-01-003", got[3].Record.ParcelID)
	assert.False(t, got.Has(4))
}

func TestMatch_ExactTierIdempotent(t *testing.T) {
	records := testRecords()
	pages := map[int]string{1: "1234 W Example St", 2: "55 North Oak Avenue"}

	first := Match(pages, records)
	second := Match(pages, records)
	assert.Equal(t, first, second)
	for _, m := range first {
		assert.Equal(t, model.MatchExact, m.Tier)
	}
}

func TestMatch_LastRecordWinsOnDuplicateKey(t *testing.T) {
	records := []model.PropertyRecord{
		{Address: "1 Main St", ParcelID: "a"},
		{Address: "1 Main St", ParcelID: "b"},
	}

	got := Match(map[int]string{1: "1 Main St"}, records)
	assert.Equal(t, "b", got[1].Record.ParcelID)
}

func TestAddProviderMatches_FillsGapsOnly(t *testing.T) {
	records := testRecords()
	existing := Match(map[int]string{1: "1234 W Example St"}, records)

	provider := map[int]string{
		1: "55 N Oak Ave",
		2: "88 Saguaro Dr Unit B, Phoenix AZ 85001",
		3: "unknown",
	}
	got := AddProviderMatches(existing, provider, records)

	require.Len(t, got, 2)
	assert.Equal(t, model.MatchExact, got[1].Tier)
	assert.Equal(t, "1234 W Example St", got[1].MatchedAddress)
	assert.Equal(t, model.MatchProviderDetected, got[2].Tier)
	assert.Len(t, existing, 1, "input mapping must not change")
}

func TestAddProviderMatches_StreetKey(t *testing.T) {
	records := testRecords()

	got := AddProviderMatches(nil, map[int]string{5: "88 Saguaro Drive Unit B Phoenix Arizona"}, records)

	require.True(t, got.Has(5))
	assert.Equal(t, "101-01-003", got[5].Record.ParcelID)
	assert.Equal(t, model.MatchProviderDetected, got[5].Tier)
}

func unitRecords() []model.PropertyRecord {
	return []model.PropertyRecord{
		{Address: "4521 E Main St Unit 3, Mesa, AZ 85201", ParcelID: "unit-3"},
		{Address: "4521 E Main St Unit 7, Mesa, AZ 85201", ParcelID: "unit-7"},
	}
}

func TestMatch_UnitsDoNotCollide(t *testing.T) {
	records := unitRecords()

	got := Match(map[int]string{
		1: "4521 E Main St Unit 3",
		2: "4521 East Main Street Unit 3 Mesa Arizona",
	}, records)

	assert.False(t, got.Has(1), "a bare unit line must not resolve to another unit")
	require.True(t, got.Has(2))
	assert.Equal(t, model.MatchStreetKey, got[2].Tier)
	assert.Equal(t, "unit-3", got[2].Record.ParcelID)
}

func TestAddProviderMatches_UnitsDoNotCollide(t *testing.T) {
	records := unitRecords()

	got := AddProviderMatches(nil, map[int]string{
		1: "4521 E Main St #3",
		2: "4521 E Main St Unit 7, Mesa, AZ 85201",
	}, records)

	assert.False(t, got.Has(1))
	require.True(t, got.Has(2))
	assert.Equal(t, "unit-7", got[2].Record.ParcelID)
}
