package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPage_RegionPattern(t *testing.T) {
	e := NewExtractor(Region{})
	text := "JUST LISTED\n\n1234 W Example St, Phoenix, AZ 85001\n3 bd | 2 ba | 1,650 sqft\n"

	got, ok := e.ExtractPage(text)
	assert.True(t, ok)
	assert.Equal(t, "1234 W Example St, Phoenix, AZ 85001", got)
}

func TestExtractPage_StreetFallback(t *testing.T) {
	e := NewExtractor(DefaultRegion)

	got, ok := e.ExtractPage("Photos\n4421 N 12th Street\nKitchen remodeled 2019")
	assert.True(t, ok)
	assert.Equal(t, "4421 N 12th Street", got)
}

func TestExtractPage_FullWidthDigitsFolded(t *testing.T) {
	e := NewExtractor(DefaultRegion)

	got, ok := e.ExtractPage("１２３ Oak Ave, Mesa, AZ 85201")
	assert.True(t, ok)
	assert.Equal(t, "123 Oak Ave, Mesa, AZ 85201", got)
}

func TestExtractPage_OnlyHeaderLines(t *testing.T) {
	e := NewExtractor(DefaultRegion)
	text := ""
	for i := 0; i < maxScanLines; i++ {
		text += "filler line\n\n"
	}
	text += "1 Main St, Tempe, AZ 85281\n"

	_, ok := e.ExtractPage(text)
	assert.False(t, ok)
}

func TestExtractPage_OtherRegion(t *testing.T) {
	e := NewExtractor(Region{State: "nv"})

	got, ok := e.ExtractPage("500 Desert Inn Rd, Las Vegas, NV 89109")
	assert.True(t, ok)
	assert.Equal(t, "500 Desert Inn Rd, Las Vegas, NV 89109", got)
}

func TestExtractAddresses_GlobalPageNumbers(t *testing.T) {
	pages := []string{
		"1234 W Example St, Phoenix, AZ 85001",
		"interior photos only",
		"88 Saguaro Drive",
	}

	got := ExtractAddresses(pages, 4, DefaultRegion)
	assert.Equal(t, map[int]string{
		4: "1234 W Example St, Phoenix, AZ 85001",
		6: "88 Saguaro Drive",
	}, got)
}
