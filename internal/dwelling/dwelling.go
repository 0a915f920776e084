// Package dwelling classifies property records as residential or
// multifamily and picks the sub-type that selects the scoring rubric.
package dwelling

import (
	"regexp"
	"strings"

	"github.com/odgsully/renoscore/internal/model"
)

const multipleDwellingsCard = "multiple dwellings"

var remarksRe = regexp.MustCompile(`(?i)\b(duplex|tri-?plex|four-?plex|4-?plex|quad-?plex|2-unit|3-unit|4-unit)\b`)

// residentialLabels maps lowercase fragments of the MLS dwelling-type label
// to residential sub-types. Checked in order.
var residentialLabels = []struct {
	fragment string
	subType  model.DwellingSubType
}{
	{"patio", model.SubTypePatioHome},
	{"townhouse", model.SubTypeTownhouse},
	{"gemini", model.SubTypeTownhouse},
	{"twin", model.SubTypeTownhouse},
	{"apartment", model.SubTypeApartment},
	{"condo", model.SubTypeApartment},
	{"loft", model.SubTypeApartment},
	{"single family", model.SubTypeSFR},
	{"mfg", model.SubTypeSFR},
	{"mobile", model.SubTypeSFR},
}

var subTypeUnits = map[model.DwellingSubType]int{
	model.SubTypeDuplex:   2,
	model.SubTypeTriplex:  3,
	model.SubTypeFourplex: 4,
	model.SubTypeSmallApt: 5,
}

// Classify derives the dwelling classification of rec. It is deterministic
// and has no side effects.
func Classify(rec model.PropertyRecord) model.DwellingClassification {
	if isStructuredMultifamily(rec) {
		return classifyMultifamily(rec)
	}

	if m := remarksRe.FindString(rec.Remarks); m != "" {
		sub := subTypeFromKeyword(m)
		return multifamily(rec, sub, subTypeUnits[sub], model.SourceRemarksRegex)
	}

	label := strings.ToLower(rec.DwellingType)
	for _, l := range residentialLabels {
		if strings.Contains(label, l.fragment) {
			return model.DwellingClassification{
				Category:        model.CategoryResidential,
				SubType:         l.subType,
				UnitCount:       1,
				DwellingTypeRaw: rec.DwellingType,
				Source:          model.SourcePropertyType,
			}
		}
	}

	c := model.DefaultClassification()
	c.DwellingTypeRaw = rec.DwellingType
	return c
}

// ClassifyAll classifies every record, keyed by PropertyRecord.Key. Records
// without an address are skipped; on duplicate keys the later record wins.
func ClassifyAll(records []model.PropertyRecord) map[string]model.DwellingClassification {
	out := make(map[string]model.DwellingClassification, len(records))
	for _, rec := range records {
		key := rec.Key()
		if key == "" {
			continue
		}
		out[key] = Classify(rec)
	}
	return out
}

func isStructuredMultifamily(rec model.PropertyRecord) bool {
	return strings.Contains(strings.ToLower(rec.PropertyType), "multi") ||
		strings.EqualFold(strings.TrimSpace(rec.CardFormat), multipleDwellingsCard)
}

func classifyMultifamily(rec model.PropertyRecord) model.DwellingClassification {
	if sub, ok := subTypeFromProjectType(rec.ProjectType); ok {
		units := rec.TotalUnits
		if units <= 0 {
			units = subTypeUnits[sub]
		}
		return multifamily(rec, sub, units, model.SourceProjectType)
	}
	if rec.TotalUnits > 0 {
		return multifamily(rec, subTypeFromUnits(rec.TotalUnits), rec.TotalUnits, model.SourceUnitCount)
	}
	return multifamily(rec, model.SubTypeDuplex, subTypeUnits[model.SubTypeDuplex], model.SourcePropertyType)
}

func multifamily(rec model.PropertyRecord, sub model.DwellingSubType, units int, src model.ClassificationSource) model.DwellingClassification {
	c := model.DwellingClassification{
		Category:        model.CategoryMultifamily,
		SubType:         sub,
		UnitCount:       units,
		DwellingTypeRaw: rec.DwellingType,
		Source:          src,
	}
	if rec.ListPrice > 0 && units > 0 {
		per := rec.ListPrice / float64(units)
		c.PerUnitPrice = &per
	}
	return c
}

func subTypeFromUnits(units int) model.DwellingSubType {
	switch {
	case units <= 2:
		return model.SubTypeDuplex
	case units == 3:
		return model.SubTypeTriplex
	case units == 4:
		return model.SubTypeFourplex
	default:
		return model.SubTypeSmallApt
	}
}

func subTypeFromProjectType(projectType string) (model.DwellingSubType, bool) {
	pt := strings.ToLower(projectType)
	switch {
	case pt == "":
		return "", false
	case strings.Contains(pt, "duplex"), strings.Contains(pt, "2 unit"), strings.Contains(pt, "2-unit"):
		return model.SubTypeDuplex, true
	case strings.Contains(pt, "triplex"), strings.Contains(pt, "3 unit"), strings.Contains(pt, "3-unit"):
		return model.SubTypeTriplex, true
	case strings.Contains(pt, "four"), strings.Contains(pt, "quad"), strings.Contains(pt, "4 unit"), strings.Contains(pt, "4-unit"), strings.Contains(pt, "4-plex"):
		return model.SubTypeFourplex, true
	case strings.Contains(pt, "apartment"), strings.Contains(pt, "5+"):
		return model.SubTypeSmallApt, true
	}
	return "", false
}

func subTypeFromKeyword(kw string) model.DwellingSubType {
	kw = strings.ToLower(kw)
	switch {
	case strings.Contains(kw, "tri"), strings.HasPrefix(kw, "3"):
		return model.SubTypeTriplex
	case strings.Contains(kw, "four"), strings.Contains(kw, "quad"), strings.HasPrefix(kw, "4"):
		return model.SubTypeFourplex
	default:
		return model.SubTypeDuplex
	}
}
