// Package address extracts postal addresses from flyer page text and
// resolves them to property records.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	punctRe     = regexp.MustCompile(`[.,#]`)
	spaceRe     = regexp.MustCompile(`\s+`)
	directionRe = regexp.MustCompile(`\b(NORTH|SOUTH|EAST|WEST)\b`)
	suffixRe    = regexp.MustCompile(`\b(STREET|AVENUE|BOULEVARD|DRIVE|ROAD|LANE|COURT|CIRCLE|PLACE|TRAIL|PARKWAY|TERRACE|HIGHWAY)\b`)
	stateZipRe  = regexp.MustCompile(`(?:\s+[A-Z]{2}\s*\d{5}(?:-\d{4})?)+$`)
)

// maxStreetTokens bounds the street key after the number and directional.
const maxStreetTokens = 5

var directions = map[string]string{
	"NORTH": "N",
	"SOUTH": "S",
	"EAST":  "E",
	"WEST":  "W",
}

// USPS suffix abbreviations.
var suffixes = map[string]string{
	"STREET":    "ST",
	"AVENUE":    "AVE",
	"BOULEVARD": "BLVD",
	"DRIVE":     "DR",
	"ROAD":      "RD",
	"LANE":      "LN",
	"COURT":     "CT",
	"CIRCLE":    "CIR",
	"PLACE":     "PL",
	"TRAIL":     "TRL",
	"PARKWAY":   "PKWY",
	"TERRACE":   "TER",
	"HIGHWAY":   "HWY",
}

// Normalize canonicalizes an address for comparison. The result is stable
// under repeated application.
func Normalize(addr string) string {
	s := cases.Upper(language.Und).String(addr)
	s = punctRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	s = directionRe.ReplaceAllStringFunc(s, func(w string) string { return directions[w] })
	s = suffixRe.ReplaceAllStringFunc(s, func(w string) string { return suffixes[w] })
	s = stateZipRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// StreetKey returns the street number and name portion of an address: the
// leading number, an optional directional, and up to five following tokens.
// Unit designators inside that window stay in the key so units of one
// building do not collide. It returns "" when the address does not start
// with a number.
func StreetKey(addr string) string {
	fields := strings.Fields(Normalize(addr))
	if len(fields) < 2 || !isDigits(fields[0]) {
		return ""
	}
	key := []string{fields[0]}
	rest := fields[1:]
	if len(rest) > 1 && isDirection(rest[0]) {
		key = append(key, rest[0])
		rest = rest[1:]
	}
	if len(rest) > maxStreetTokens {
		rest = rest[:maxStreetTokens]
	}
	return strings.Join(append(key, rest...), " ")
}

func isDirection(tok string) bool {
	switch tok {
	case "N", "S", "E", "W":
		return true
	}
	return false
}

func isDigits(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return tok != ""
}

// exactKey is the strictest comparison form: upper-cased and trimmed.
func exactKey(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}
