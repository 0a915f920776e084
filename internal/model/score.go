package model

// Confidence grades how much of the property the photos covered.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RoomScore is a 1-10 score for one room or area.
type RoomScore struct {
	Type         string `json:"type"`
	Observations string `json:"observations"`
	Score        int    `json:"score"`
}

// UnitScore scores one unit of a multifamily property.
type UnitScore struct {
	Unit  string      `json:"unit"`
	Rooms []RoomScore `json:"rooms"`
	Score int         `json:"score"`
}

// PropertyScore is one scored flyer page.
type PropertyScore struct {
	Address          string      `json:"address"`
	ParcelID         string      `json:"parcel_id,omitempty"`
	MLSNumber        string      `json:"mls_number,omitempty"`
	MatchTier        MatchTier   `json:"match_tier,omitempty"`
	DetectedAddress  string      `json:"detected_address"`
	PageNumber       int         `json:"page_number"`
	Score            int         `json:"renovation_score"`
	RenoYearEstimate *int        `json:"reno_year_estimate"`
	Confidence       Confidence  `json:"confidence"`
	EraBaseline      string      `json:"era_baseline,omitempty"`
	Reasoning        string      `json:"reasoning"`
	Rooms            []RoomScore `json:"rooms"`

	UnitScores         []UnitScore     `json:"unit_scores,omitempty"`
	UnitsShown         int             `json:"units_shown,omitempty"`
	MixedConditionFlag bool            `json:"mixed_condition_flag,omitempty"`
	Exterior           *RoomScore      `json:"exterior,omitempty"`
	PropertySubType    DwellingSubType `json:"property_subtype,omitempty"`
	PerUnitPrice       *float64        `json:"per_unit_price,omitempty"`
}

// Resolved reports whether the score has been tied to a canonical address.
func (s PropertyScore) Resolved() bool {
	return s.Address != ""
}

// FailureReason tags why a page could not be scored.
type FailureReason string

const (
	FailureNoPages          FailureReason = "no_pages"
	FailureScoreOutOfRange  FailureReason = "score_out_of_range"
	FailureJSONParse        FailureReason = "json_parse_error"
	FailureAPI              FailureReason = "api_error"
	FailureUnmatchedAddress FailureReason = "unmatched_address"
	FailureCanceled         FailureReason = "canceled"
)

// ScoringFailure records a page that produced no valid score.
type ScoringFailure struct {
	PageNumber int           `json:"page_number"`
	Address    string        `json:"address,omitempty"`
	Reason     FailureReason `json:"reason"`
	Detail     string        `json:"detail"`
}

// Usage accumulates provider token consumption.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Stats summarizes a pipeline run.
type Stats struct {
	TotalPages int `json:"total"`
	Scored     int `json:"scored"`
	Failed     int `json:"failed"`
	Unmatched  int `json:"unmatched"`
}

// PipelineResult is the terminal aggregate of a scoring run.
type PipelineResult struct {
	Scores    []PropertyScore  `json:"scores"`
	Failures  []ScoringFailure `json:"failures"`
	Unmatched []string         `json:"unmatched"`
	Stats     Stats            `json:"stats"`
	Usage     Usage            `json:"usage"`
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
}
