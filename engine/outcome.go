package engine

import (
	"time"

	"github.com/samber/lo"
)

// ChecksumState is the verification result of one file.
type ChecksumState string

const (
	ChecksumMatched       ChecksumState = "matched"
	ChecksumMismatched    ChecksumState = "mismatched"
	ChecksumNotApplicable ChecksumState = "not_applicable"
)

// TransferOutcome is the recorded result of one file. It is built once the
// attempt finishes and never changed afterwards.
type TransferOutcome struct {
	BatchID           string        `json:"batchId"`
	Index             int           `json:"index"`
	FileName          string        `json:"fileName"`
	SourcePath        string        `json:"sourcePath"`
	DestinationPath   string        `json:"destinationPath"`
	Mode              TransferMode  `json:"mode"`
	TransferSucceeded bool          `json:"transferSucceeded"`
	Checksum          ChecksumState `json:"checksum"`
	ErrorMessage      string        `json:"errorMessage,omitempty"`
	Bytes             int64         `json:"bytes"`
	Duration          time.Duration `json:"durationNs"`
	Timestamp         time.Time     `json:"timestamp"`
}

// ChecksumMatched reports whether the file was verified identical.
func (o TransferOutcome) ChecksumMatched() bool {
	return o.Checksum == ChecksumMatched
}

// Succeeded reports whether the file arrived and did not fail verification.
func (o TransferOutcome) Succeeded() bool {
	return o.TransferSucceeded && o.Checksum != ChecksumMismatched
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Total              int `json:"total"`
	Succeeded          int `json:"succeeded"`
	Failed             int `json:"failed"`
	ChecksumMismatches int `json:"checksumMismatches"`
}

// Summarize counts outcomes. A transferred file whose checksum mismatched
// counts as failed.
func Summarize(outcomes []TransferOutcome) Summary {
	succeeded := lo.CountBy(outcomes, TransferOutcome.Succeeded)
	return Summary{
		Total:     len(outcomes),
		Succeeded: succeeded,
		Failed:    len(outcomes) - succeeded,
		ChecksumMismatches: lo.CountBy(outcomes, func(o TransferOutcome) bool {
			return o.Checksum == ChecksumMismatched
		}),
	}
}

// BatchResult is the authoritative result of a batch: the batch completed,
// and each file's fate is in Outcomes, in enumeration order.
type BatchResult struct {
	BatchID    string            `json:"batchId"`
	Mode       TransferMode      `json:"mode"`
	Outcomes   []TransferOutcome `json:"outcomes"`
	Summary    Summary           `json:"summary"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}
