package dataset

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/model"
)

type field int

const (
	fAddress field = iota
	fCity
	fState
	fZip
	fParcel
	fMLS
	fListPrice
	fUnits
	fBedrooms
	fBathrooms
	fSquareFeet
	fYearBuilt
	fRemarks
	fPropertyType
	fDwellingType
	fProjectType
	fCardFormat
	fHouseNumber
	fCompass
	fStreetName
	fStreetDirSuffix
	fStreetSuffix
	fUnitNumber
)

// headerAliases maps lower-cased column headers, including ARMLS export
// names, to record fields.
var headerAliases = map[string]field{
	"address":          fAddress,
	"full address":     fAddress,
	"property address": fAddress,
	"street address":   fAddress,
	"city":             fCity,
	"city/town code":   fCity,
	"state":            fState,
	"state/province":   fState,
	"zip":              fZip,
	"zip code":         fZip,
	"postal code":      fZip,
	"apn":              fParcel,
	"assessor number":  fParcel,
	"parcel id":        fParcel,
	"parcel":           fParcel,
	"mls":              fMLS,
	"mls number":       fMLS,
	"mls #":            fMLS,
	"list number":      fMLS,
	"list price":       fListPrice,
	"price":            fListPrice,
	"total # of units": fUnits,
	"total units":      fUnits,
	"units":            fUnits,
	"# bedrooms":       fBedrooms,
	"bedrooms":         fBedrooms,
	"beds":             fBedrooms,
	"total bathrooms":  fBathrooms,
	"bathrooms":        fBathrooms,
	"baths":            fBathrooms,
	"approx sqft":      fSquareFeet,
	"square feet":      fSquareFeet,
	"sqft":             fSquareFeet,
	"year built":       fYearBuilt,
	"public remarks":   fRemarks,
	"remarks":          fRemarks,
	"property type":    fPropertyType,
	"dwelling type":    fDwellingType,
	"project type":     fProjectType,
	"card format":      fCardFormat,
	"house number":     fHouseNumber,
	"compass":          fCompass,
	"street name":      fStreetName,
	"st dir sfx":       fStreetDirSuffix,
	"st suffix":        fStreetSuffix,
	"unit #":           fUnitNumber,
}

// LoadFile reads a CSV or XLSX listing export from disk.
func LoadFile(ctx context.Context, path string) ([]model.PropertyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Load(ctx, filepath.Base(path), f)
}

// Load parses a listing export. The format is chosen by the extension of
// name: .xlsx is read as a workbook, anything else as CSV.
func Load(ctx context.Context, name string, r io.Reader) ([]model.PropertyRecord, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		data, rerr := io.ReadAll(r)
		if rerr != nil {
			return nil, eris.Wrap(rerr, "dataset: read workbook")
		}
		rows, err = ReadXLSX(data, XLSXOptions{})
	} else {
		rows, err = ReadCSV(ctx, r, CSVOptions{LazyQuotes: true, TrimSpace: true})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", name)
	}
	return FromRows(rows)
}

// FromRows converts a header row plus data rows into records. Rows without
// a usable address are skipped. When the export has no full address column
// the street is assembled from the ARMLS component columns.
func FromRows(rows [][]string) ([]model.PropertyRecord, error) {
	if len(rows) == 0 {
		return nil, eris.New("dataset: empty file")
	}

	cols := make(map[field]int)
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if f, ok := headerAliases[h]; ok {
			if _, dup := cols[f]; !dup {
				cols[f] = i
			}
		}
	}
	_, hasAddress := cols[fAddress]
	_, hasStreet := cols[fStreetName]
	if !hasAddress && !hasStreet {
		return nil, eris.New("dataset: no address column found")
	}

	records := make([]model.PropertyRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		get := func(f field) string {
			i, ok := cols[f]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		street := get(fAddress)
		if street == "" {
			street = armlsStreet(get)
		}
		if street == "" {
			skipped++
			continue
		}

		rec := model.PropertyRecord{
			City:         get(fCity),
			State:        get(fState),
			Zip:          get(fZip),
			ParcelID:     get(fParcel),
			MLSNumber:    get(fMLS),
			ListPrice:    parseFloat(get(fListPrice)),
			TotalUnits:   parseInt(get(fUnits)),
			Bedrooms:     parseInt(get(fBedrooms)),
			Bathrooms:    parseFloat(get(fBathrooms)),
			SquareFeet:   parseInt(get(fSquareFeet)),
			YearBuilt:    parseInt(get(fYearBuilt)),
			Remarks:      get(fRemarks),
			PropertyType: get(fPropertyType),
			DwellingType: get(fDwellingType),
			ProjectType:  get(fProjectType),
			CardFormat:   get(fCardFormat),
		}
		rec.Address = fullAddress(street, rec.City, rec.State, rec.Zip)
		records = append(records, rec)
	}

	zap.L().Debug("dataset: loaded records", zap.Int("records", len(records)), zap.Int("skipped", skipped))
	return records, nil
}

// armlsStreet assembles "4620 N 68TH ST 155" from component columns.
func armlsStreet(get func(field) string) string {
	var parts []string
	for _, f := range []field{fHouseNumber, fCompass, fStreetName, fStreetDirSuffix, fStreetSuffix, fUnitNumber} {
		if v := get(f); v != "" {
			parts = append(parts, v)
		}
	}
	if get(fStreetName) == "" {
		return ""
	}
	return strings.Join(parts, " ")
}

// fullAddress appends city, state and zip to a bare street so records
// compare directly against flyer addresses.
func fullAddress(street, city, state, zip string) string {
	if strings.Contains(street, ",") || city == "" {
		return street
	}
	var sb bytes.Buffer
	sb.WriteString(street)
	sb.WriteString(", ")
	sb.WriteString(city)
	if state != "" || zip != "" {
		sb.WriteString(",")
		if state != "" {
			sb.WriteString(" " + state)
		}
		if zip != "" {
			sb.WriteString(" " + zip)
		}
	}
	return sb.String()
}

var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(numberCleaner.Replace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	return int(parseFloat(s))
}
