package scoring

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// RawRoom is a room or exterior score as returned by the provider.
type RawRoom struct {
	Type         string  `json:"type"`
	Observations string  `json:"observations"`
	Score        float64 `json:"score"`
}

// RawUnit is one unit's breakdown in a multifamily response.
type RawUnit struct {
	Unit  string    `json:"unit"`
	Rooms []RawRoom `json:"rooms"`
	Score float64   `json:"score"`
}

// RawScore is one per-page object of a provider response. Multifamily
// fields are absent for residential prompts.
type RawScore struct {
	DetectedAddress  string    `json:"detected_address"`
	Rooms            []RawRoom `json:"rooms"`
	EraBaseline      string    `json:"era_baseline"`
	Reasoning        string    `json:"reasoning"`
	RenovationScore  *float64  `json:"renovation_score"`
	RenoYearEstimate *float64  `json:"reno_year_estimate"`
	Confidence       string    `json:"confidence"`

	PropertySubType    string    `json:"property_subtype,omitempty"`
	UnitCount          int       `json:"unit_count,omitempty"`
	PerDoorPrice       *float64  `json:"per_door_price,omitempty"`
	UnitsShown         int       `json:"units_shown,omitempty"`
	UnitScores         []RawUnit `json:"unit_scores,omitempty"`
	Exterior           *RawRoom  `json:"exterior,omitempty"`
	MixedConditionFlag bool      `json:"mixed_condition_flag,omitempty"`
}

// ParseResult is either Parsed or ParseError.
type ParseResult interface {
	parseResult()
}

// Parsed holds the decoded per-page objects. Lenient is set when the text
// needed cleanup before it decoded.
type Parsed struct {
	Items   []RawScore
	Lenient bool
}

// ParseError describes a response that could not be decoded.
type ParseError struct {
	Err error
}

func (Parsed) parseResult()     {}
func (ParseError) parseResult() {}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Parse decodes a provider response as a JSON array of per-page objects.
// Strict decoding is tried first; on failure, markdown fences and any
// prose around the outermost array are stripped, and a lone object is
// treated as a one-element array.
func Parse(text string) ParseResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParseError{Err: eris.New("scoring: empty response")}
	}

	if items, err := decodeArray([]byte(trimmed)); err == nil {
		return Parsed{Items: items}
	}

	cleaned := trimmed
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}

	if arr, ok := cut(cleaned, '[', ']'); ok {
		if items, err := decodeArray([]byte(arr)); err == nil {
			return Parsed{Items: items, Lenient: true}
		}
	}
	if obj, ok := cut(cleaned, '{', '}'); ok {
		var one RawScore
		if err := json.Unmarshal([]byte(obj), &one); err == nil {
			return Parsed{Items: []RawScore{one}, Lenient: true}
		}
	}

	_, err := decodeArray([]byte(trimmed))
	return ParseError{Err: eris.Wrap(err, "scoring: response is not a JSON array")}
}

func decodeArray(data []byte) ([]RawScore, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var items []RawScore
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, eris.New("trailing data after JSON array")
	}
	if items == nil {
		return nil, eris.New("null response")
	}
	return items, nil
}

// cut returns the substring from the first open to the last closing byte.
func cut(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
