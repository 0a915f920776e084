// Package model defines the data types shared by the renovation scoring pipeline.
package model

import "strings"

// PropertyRecord is one row of the structured listing dataset. The pipeline
// treats records as read-only input.
type PropertyRecord struct {
	Address      string  `json:"address"`
	City         string  `json:"city,omitempty"`
	State        string  `json:"state,omitempty"`
	Zip          string  `json:"zip,omitempty"`
	ParcelID     string  `json:"parcel_id,omitempty"`
	MLSNumber    string  `json:"mls_number,omitempty"`
	ListPrice    float64 `json:"list_price,omitempty"`
	TotalUnits   int     `json:"total_units,omitempty"`
	Bedrooms     int     `json:"bedrooms,omitempty"`
	Bathrooms    float64 `json:"bathrooms,omitempty"`
	SquareFeet   int     `json:"square_feet,omitempty"`
	YearBuilt    int     `json:"year_built,omitempty"`
	Remarks      string  `json:"remarks,omitempty"`
	PropertyType string  `json:"property_type,omitempty"`
	DwellingType string  `json:"dwelling_type,omitempty"`
	ProjectType  string  `json:"project_type,omitempty"`
	CardFormat   string  `json:"card_format,omitempty"`
}

// Key returns the cache key used for per-address lookups (upper-cased, trimmed).
func (r PropertyRecord) Key() string {
	return strings.ToUpper(strings.TrimSpace(r.Address))
}
