package service

import "errors"

// Error classes for per-item processing failures. They are recorded on the
// record (status=error plus error_message) and reported to the
// orchestrator as a failed item; they never abort a batch.
var (
	// ErrExtraction indicates a decode or frame-sampling failure.
	ErrExtraction = errors.New("frame extraction failed")

	// ErrAnalysis indicates an AI transport failure or empty response.
	ErrAnalysis = errors.New("analysis request failed")

	// ErrParse indicates a malformed or non-JSON AI response.
	ErrParse = errors.New("analysis response parse failed")
)
