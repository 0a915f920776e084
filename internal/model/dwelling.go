package model

// DwellingCategory is the high-level rubric selector.
type DwellingCategory string

const (
	CategoryResidential DwellingCategory = "residential"
	CategoryMultifamily DwellingCategory = "multifamily"
)

// DwellingSubType is the granular dwelling classification.
type DwellingSubType string

const (
	SubTypeSFR       DwellingSubType = "sfr"
	SubTypeApartment DwellingSubType = "apartment"
	SubTypeTownhouse DwellingSubType = "townhouse"
	SubTypePatioHome DwellingSubType = "patio_home"
	SubTypeDuplex    DwellingSubType = "duplex"
	SubTypeTriplex   DwellingSubType = "triplex"
	SubTypeFourplex  DwellingSubType = "fourplex"
	SubTypeSmallApt  DwellingSubType = "small_apt"
)

// ClassificationSource names the heuristic that produced a classification.
type ClassificationSource string

const (
	SourceProjectType  ClassificationSource = "project_type"
	SourceUnitCount    ClassificationSource = "unit_count"
	SourcePropertyType ClassificationSource = "property_type"
	SourceRemarksRegex ClassificationSource = "remarks_regex"
	SourceDefault      ClassificationSource = "default"
)

// DwellingClassification drives rubric selection for a property.
type DwellingClassification struct {
	Category        DwellingCategory     `json:"category"`
	SubType         DwellingSubType      `json:"sub_type"`
	UnitCount       int                  `json:"unit_count"`
	PerUnitPrice    *float64             `json:"per_unit_price,omitempty"`
	DwellingTypeRaw string               `json:"dwelling_type_raw,omitempty"`
	Source          ClassificationSource `json:"source"`
}

// DefaultClassification is used when no record is known for a chunk.
func DefaultClassification() DwellingClassification {
	return DwellingClassification{
		Category:  CategoryResidential,
		SubType:   SubTypeSFR,
		UnitCount: 1,
		Source:    SourceDefault,
	}
}

// IsMultifamily reports whether the multifamily rubric applies.
func (d DwellingClassification) IsMultifamily() bool {
	return d.Category == CategoryMultifamily
}
