package model

// Stage identifies the pipeline step a progress event belongs to.
type Stage string

const (
	StagePDFConcatenating  Stage = "pdf_concatenating"
	StagePDFSplitting      Stage = "pdf_splitting"
	StageTextExtracting    Stage = "text_extracting"
	StageAddressMapping    Stage = "address_mapping"
	StageDwellingDetecting Stage = "dwelling_detecting"
	StageScoringBatch      Stage = "scoring_batch"
	StageScoringProperty   Stage = "scoring_property"
	StageScoringComplete   Stage = "scoring_complete"
	StageError             Stage = "error"
)

// ProgressEvent is emitted while a run is in flight. Events within a chunk
// are ordered; events from different chunks interleave.
type ProgressEvent struct {
	Stage   Stage           `json:"type"`
	Message string          `json:"message"`
	Current int             `json:"current,omitempty"`
	Total   int             `json:"total,omitempty"`
	Score   *PropertyScore  `json:"score,omitempty"`
	Result  *PipelineResult `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}
