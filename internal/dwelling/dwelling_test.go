package dwelling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odgsully/renoscore/internal/model"
)

func TestClassify_MultiFamilyByUnitCount(t *testing.T) {
	c := Classify(model.PropertyRecord{
		Address:      "1 Main St",
		PropertyType: "MultiFamily",
		TotalUnits:   3,
		ListPrice:    600000,
	})

	assert.Equal(t, model.CategoryMultifamily, c.Category)
	assert.Equal(t, model.SubTypeTriplex, c.SubType)
	assert.Equal(t, 3, c.UnitCount)
	assert.Equal(t, model.SourceUnitCount, c.Source)
	require.NotNil(t, c.PerUnitPrice)
	assert.InDelta(t, 200000, *c.PerUnitPrice, 0.01)
}

func TestClassify_RemarksOverrideResidential(t *testing.T) {
	for _, remarks := range []string{
		"Great DUPLEX opportunity near ASU",
		"Live in one side, rent the other. duplex!",
	} {
		c := Classify(model.PropertyRecord{
			PropertyType: "Residential",
			DwellingType: "Single Family - Detached",
			Remarks:      remarks,
		})
		assert.Equal(t, model.CategoryMultifamily, c.Category, remarks)
		assert.Equal(t, model.SubTypeDuplex, c.SubType, remarks)
		assert.Equal(t, 2, c.UnitCount, remarks)
		assert.Equal(t, model.SourceRemarksRegex, c.Source, remarks)
		assert.Nil(t, c.PerUnitPrice, remarks)
	}
}

func TestClassify_RemarksVariants(t *testing.T) {
	tests := []struct {
		remarks string
		want    model.DwellingSubType
	}{
		{"rare four-plex", model.SubTypeFourplex},
		{"Quadplex with pool", model.SubTypeFourplex},
		{"4-plex fully leased", model.SubTypeFourplex},
		{"TRIPLEX on large lot", model.SubTypeTriplex},
		{"tri-plex", model.SubTypeTriplex},
		{"2-unit property", model.SubTypeDuplex},
	}
	for _, tt := range tests {
		t.Run(tt.remarks, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.PropertyRecord{Remarks: tt.remarks}).SubType)
		})
	}
}

func TestClassify_ProjectTypeWins(t *testing.T) {
	c := Classify(model.PropertyRecord{
		CardFormat:  "Multiple Dwellings",
		ProjectType: "Fourplex",
		TotalUnits:  2,
	})
	assert.Equal(t, model.SubTypeFourplex, c.SubType)
	assert.Equal(t, 2, c.UnitCount)
	assert.Equal(t, model.SourceProjectType, c.Source)
}

func TestClassify_MultifamilyDefaultsToDuplex(t *testing.T) {
	c := Classify(model.PropertyRecord{PropertyType: "multi-family", ListPrice: 500000})
	assert.Equal(t, model.SubTypeDuplex, c.SubType)
	assert.Equal(t, 2, c.UnitCount)
	assert.Equal(t, model.SourcePropertyType, c.Source)
	require.NotNil(t, c.PerUnitPrice)
	assert.InDelta(t, 250000, *c.PerUnitPrice, 0.01)
}

func TestClassify_LargeUnitCount(t *testing.T) {
	c := Classify(model.PropertyRecord{PropertyType: "MultiFamily", TotalUnits: 8})
	assert.Equal(t, model.SubTypeSmallApt, c.SubType)
	assert.Equal(t, 8, c.UnitCount)
}

func TestClassify_ResidentialLookup(t *testing.T) {
	tests := []struct {
		label string
		want  model.DwellingSubType
	}{
		{"Townhouse", model.SubTypeTownhouse},
		{"Patio Home", model.SubTypePatioHome},
		{"Apartment Style/Flat", model.SubTypeApartment},
		{"Single Family - Detached", model.SubTypeSFR},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c := Classify(model.PropertyRecord{DwellingType: tt.label})
			assert.Equal(t, model.CategoryResidential, c.Category)
			assert.Equal(t, tt.want, c.SubType)
			assert.Equal(t, model.SourcePropertyType, c.Source)
			assert.Equal(t, tt.label, c.DwellingTypeRaw)
		})
	}
}

func TestClassify_Default(t *testing.T) {
	c := Classify(model.PropertyRecord{Address: "1 Main St"})
	assert.Equal(t, model.DefaultClassification(), c)
}

func TestClassifyAll(t *testing.T) {
	got := ClassifyAll([]model.PropertyRecord{
		{Address: " 1 main st ", PropertyType: "MultiFamily", TotalUnits: 4},
		{Address: "2 Oak Ave"},
		{Address: ""},
	})

	require.Len(t, got, 2)
	assert.Equal(t, model.SubTypeFourplex, got["1 MAIN ST"].SubType)
	assert.Equal(t, model.SubTypeSFR, got["2 OAK AVE"].SubType)
}
