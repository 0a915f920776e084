package address

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxScanLines bounds how far into a page the extractor looks. Flyers print
// the address in the header block.
const maxScanLines = 15

// Region scopes the full-address pattern to one state.
type Region struct {
	State string
}

// DefaultRegion is the market the flyers come from.
var DefaultRegion = Region{State: "AZ"}

var streetOnlyRe = regexp.MustCompile(`(?i)\b(\d{1,6}\s+(?:[NSEW]\.?\s+)?(?:[A-Za-z0-9'\-]+\s+){0,4}?(?:STREET|ST|AVENUE|AVE|ROAD|RD|DRIVE|DR|LANE|LN|COURT|CT|CIRCLE|CIR|PLACE|PL|TRAIL|TRL|PARKWAY|PKWY|TERRACE|TER|HIGHWAY|HWY|BOULEVARD|BLVD|WAY|LOOP|PATH))\b`)

// Extractor pulls a best-effort address from each page's text.
type Extractor struct {
	region   Region
	regionRe *regexp.Regexp
}

// NewExtractor builds an Extractor for region. An empty state falls back to
// DefaultRegion.
func NewExtractor(region Region) *Extractor {
	if strings.TrimSpace(region.State) == "" {
		region = DefaultRegion
	}
	region.State = strings.ToUpper(strings.TrimSpace(region.State))
	pattern := fmt.Sprintf(`(?i)(\d+\s+[^,\n]+?)\s*,\s*([A-Za-z][A-Za-z .'\-]*?)\s*,?\s+(%s)\s+(\d{5})(?:-\d{4})?\b`,
		regexp.QuoteMeta(region.State))
	return &Extractor{
		region:   region,
		regionRe: regexp.MustCompile(pattern),
	}
}

// ExtractAddresses maps global page numbers to the address found on each
// page. pages[i] is the text of page startPage+i. Pages without a match are
// left out of the result.
func (e *Extractor) ExtractAddresses(pages []string, startPage int) map[int]string {
	out := make(map[int]string)
	for i, text := range pages {
		if addr, ok := e.ExtractPage(text); ok {
			out[startPage+i] = addr
		}
	}
	return out
}

// ExtractPage returns the first address found in the header lines of text.
func (e *Extractor) ExtractPage(text string) (string, bool) {
	for _, line := range headerLines(text) {
		if m := e.regionRe.FindStringSubmatch(line); m != nil {
			street := strings.Join(strings.Fields(m[1]), " ")
			city := strings.Join(strings.Fields(m[2]), " ")
			return fmt.Sprintf("%s, %s, %s %s", street, city, strings.ToUpper(m[3]), m[4]), true
		}
		if m := streetOnlyRe.FindStringSubmatch(line); m != nil {
			return strings.Join(strings.Fields(m[1]), " "), true
		}
	}
	return "", false
}

// headerLines returns up to maxScanLines non-empty, NFKC-folded lines.
func headerLines(text string) []string {
	text = norm.NFKC.String(text)
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxScanLines {
			break
		}
	}
	return lines
}

// ExtractAddresses is a convenience wrapper around NewExtractor(region).
func ExtractAddresses(pages []string, startPage int, region Region) map[int]string {
	return NewExtractor(region).ExtractAddresses(pages, startPage)
}
