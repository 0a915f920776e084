package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const armlsCSV = `List Number,Assessor Number,House Number,Compass,Street Name,St Dir Sfx,St Suffix,Unit #,City/Town Code,State/Province,Zip Code,List Price,Total # of Units,Dwelling Type,Card Format,# Bedrooms,Total Bathrooms,Approx SQFT,Year Built,Public Remarks
6812345,173-24-015,4620,N,68TH,,ST,155,Scottsdale,AZ,85251,"$425,000",,Townhouse,Residential,2,2.5,"1,250",1984,Updated kitchen
6812346,,2415,W,THOMAS,,RD,,Phoenix,AZ,85015,"$1,200,000",4,,Multiple Dwellings,,,,1962,
6812347,,,,,,,,Mesa,AZ,85201,,,,,,,,,
`

func TestLoad_ARMLSCSV(t *testing.T) {
	recs, err := Load(context.Background(), "export.csv", strings.NewReader(armlsCSV))
	require.NoError(t, err)
	require.Len(t, recs, 2, "row without street is skipped")

	r := recs[0]
	assert.Equal(t, "4620 N 68TH ST 155, Scottsdale, AZ 85251", r.Address)
	assert.Equal(t, "6812345", r.MLSNumber)
	assert.Equal(t, "173-24-015", r.ParcelID)
	assert.InDelta(t, 425000.0, r.ListPrice, 0.01)
	assert.Equal(t, "Townhouse", r.DwellingType)
	assert.Equal(t, 2, r.Bedrooms)
	assert.InDelta(t, 2.5, r.Bathrooms, 0.001)
	assert.Equal(t, 1250, r.SquareFeet)
	assert.Equal(t, 1984, r.YearBuilt)
	assert.Equal(t, "Updated kitchen", r.Remarks)

	mf := recs[1]
	assert.Equal(t, "2415 W THOMAS RD, Phoenix, AZ 85015", mf.Address)
	assert.Equal(t, 4, mf.TotalUnits)
	assert.Equal(t, "Multiple Dwellings", mf.CardFormat)
	assert.InDelta(t, 1200000.0, mf.ListPrice, 0.01)
}

func TestLoad_GenericCSV(t *testing.T) {
	input := "\ufeffAddress,City,State,Zip,APN\n" +
		"123 Main St,Phoenix,AZ,85001,111\n" +
		"\"9 Elm St, Tempe, AZ 85281\",Tempe,AZ,85281,\n" +
		"456 Oak Ave,,,,\n"

	recs, err := Load(context.Background(), "props.csv", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "123 Main St, Phoenix, AZ 85001", recs[0].Address)
	assert.Equal(t, "111", recs[0].ParcelID)
	assert.Equal(t, "9 Elm St, Tempe, AZ 85281", recs[1].Address, "address with comma kept as-is")
	assert.Equal(t, "456 Oak Ave", recs[2].Address, "no city leaves the street bare")
}

func TestLoad_XLSX(t *testing.T) {
	data := buildXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Full Address", "MLS #", "Total Units"},
			{"100 Palm Ln, Phoenix, AZ 85004", "777", "2"},
		},
	}, "Sheet1")

	recs, err := Load(context.Background(), "listings.XLSX", bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "100 Palm Ln, Phoenix, AZ 85004", recs[0].Address)
	assert.Equal(t, "777", recs[0].MLSNumber)
	assert.Equal(t, 2, recs[0].TotalUnits)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	require.NoError(t, os.WriteFile(path, []byte("Address\n1 A St\n"), 0o644))

	recs, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1 A St", recs[0].Address)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestFromRows_Errors(t *testing.T) {
	_, err := FromRows(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file")

	_, err = FromRows([][]string{{"Price", "Beds"}, {"1", "2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no address column")
}

func TestParseNumbers(t *testing.T) {
	assert.InDelta(t, 1234.5, parseFloat("$1,234.50"), 0.001)
	assert.Equal(t, 0.0, parseFloat("n/a"))
	assert.Equal(t, 3, parseInt("3.0"))
	assert.Equal(t, 0, parseInt(""))
}
