package domain

import "time"

// Stage names the fixed pipeline steps plus the bracketing upload/commit
// transitions that share the same event log.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageParse    Stage = "parse"
	StageClassify Stage = "classify"
	StagePack     Stage = "pack"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageLink     Stage = "link"
	StageStage    Stage = "stage"
	StageCommit   Stage = "commit"
	StageComplete Stage = "complete"
)

// PipelineStages is the fixed execution order of one run.
func PipelineStages() []Stage {
	return []Stage{
		StageParse, StageClassify, StagePack, StageExtract,
		StageValidate, StageLink, StageStage,
	}
}

// StatusForStage is the document status a completed stage transitions to.
func StatusForStage(s Stage) DocumentStatus {
	switch s {
	case StageParse:
		return StatusParsing
	case StageClassify:
		return StatusClassified
	case StagePack:
		return StatusPacked
	case StageExtract:
		return StatusExtracted
	case StageValidate:
		return StatusValidated
	case StageLink:
		return StatusLinked
	case StageStage:
		return StatusStaged
	default:
		return StatusUploaded
	}
}

type EventStatus string

const (
	EventStart EventStatus = "start"
	EventOK    EventStatus = "ok"
	EventRetry EventStatus = "retry"
	EventFail  EventStatus = "fail"
)

// IngestEvent is one append-only audit row; rows are never mutated.
type IngestEvent struct {
	ID         int64       `json:"id"`
	DocumentID string      `json:"document_id"`
	Stage      Stage       `json:"stage"`
	Status     EventStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	TraceID    string      `json:"trace_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// StageEvent is the progress event streamed to pipeline subscribers.
type StageEvent struct {
	Stage     Stage       `json:"stage"`
	Status    EventStatus `json:"status"`
	Progress  float64     `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunResult is the structured outcome of one pipeline run. The orchestrator
// always returns one of these for an executed run; stage failures are
// reported here, not propagated as errors.
type RunResult struct {
	DocumentID        string         `json:"document_id"`
	Status            DocumentStatus `json:"status"`
	FailedStage       Stage          `json:"failed_stage,omitempty"`
	OverallConfidence float64        `json:"overall_confidence"`
	RequiresReview    bool           `json:"requires_review"`
	ItemCount         int            `json:"item_count"`
	TraceID           string         `json:"trace_id,omitempty"`
	Error             string         `json:"error,omitempty"`
}
