package engine

import (
	"io"
	"sync"
	"time"

	"github.com/franksops/filexfer/store"
)

// CheckpointConfig defines when a running copy records its progress.
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker writes the audit trail of batches and their files to a store.
// A nil *JobTracker is valid and records nothing.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
	now    func() time.Time
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(store store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// BeginBatch records a batch about to run.
func (jt *JobTracker) BeginBatch(batchID string, req TransferRequest, total int, startedAt time.Time) error {
	if jt == nil {
		return nil
	}
	return jt.store.SaveBatch(&store.BatchRecord{
		ID:                  batchID,
		Mode:                string(req.Mode()),
		SourceLocation:      req.SourceLocation,
		SourcePath:          req.SourcePath,
		DestinationLocation: req.DestinationLocation,
		DestinationPath:     req.DestinationPath,
		Total:               total,
		StartedAt:           startedAt,
	})
}

// FinishBatch stores the summary of a completed batch.
func (jt *JobTracker) FinishBatch(result *BatchResult) error {
	if jt == nil {
		return nil
	}
	record, err := jt.store.GetBatch(result.BatchID)
	if err != nil {
		return err
	}
	record.Total = result.Summary.Total
	record.Succeeded = result.Summary.Succeeded
	record.Failed = result.Summary.Failed
	record.ChecksumMismatches = result.Summary.ChecksumMismatches
	record.FinishedAt = result.FinishedAt
	return jt.store.SaveBatch(record)
}

// Lookup returns a batch and its file records in enumeration order.
func (jt *JobTracker) Lookup(batchID string) (*store.BatchRecord, []*store.JobRecord, error) {
	if jt == nil {
		return nil, nil, store.ErrBatchNotFound
	}
	batch, err := jt.store.GetBatch(batchID)
	if err != nil {
		return nil, nil, err
	}
	jobs, err := jt.store.ListJobs(batchID)
	if err != nil {
		return nil, nil, err
	}
	return batch, jobs, nil
}

// InitJob records a file as pending.
func (jt *JobTracker) InitJob(job TransferJob) error {
	if jt == nil {
		return nil
	}

	totalBytes := int64(0)
	if job.FileInfo != nil {
		totalBytes = job.FileInfo.Size()
	}

	record := &store.JobRecord{
		ID:               job.ID,
		BatchID:          job.BatchID,
		Index:            job.Index,
		FileName:         job.FileName,
		SourcePath:       job.SourcePath,
		DestinationPath:  job.DestinationPath,
		Mode:             string(job.Mode),
		State:            store.StatePending,
		BytesTransferred: 0,
		TotalBytes:       totalBytes,
		UpdatedAt:        jt.now(),
	}

	return jt.store.SaveJob(record)
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	record.UpdatedAt = jt.now()
	return jt.store.SaveJob(record)
}

// MarkInProgress updates a job's state to InProgress
func (jt *JobTracker) MarkInProgress(jobID string) error {
	if jt == nil {
		return nil
	}
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted records a file that arrived at its destination.
func (jt *JobTracker) MarkCompleted(jobID string, outcome TransferOutcome) error {
	if jt == nil {
		return nil
	}
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.BytesTransferred = outcome.Bytes
		r.Checksum = string(outcome.Checksum)
		r.Error = outcome.ErrorMessage
	})
}

// MarkFailed records a file whose transfer failed.
func (jt *JobTracker) MarkFailed(jobID string, outcome TransferOutcome) error {
	if jt == nil {
		return nil
	}
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		r.BytesTransferred = outcome.Bytes
		r.Checksum = string(outcome.Checksum)
		r.Error = outcome.ErrorMessage
	})
}

// Finish records the final state matching outcome.
func (jt *JobTracker) Finish(jobID string, outcome TransferOutcome) error {
	if outcome.TransferSucceeded {
		return jt.MarkCompleted(jobID, outcome)
	}
	return jt.MarkFailed(jobID, outcome)
}

// TrackedWriter wraps an io.Writer to track bytes written and checkpoint progress
type TrackedWriter struct {
	io.Writer
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	bytesWritten    int64
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewTrackedWriter creates a new TrackedWriter. On a nil tracker it only
// counts bytes.
func (jt *JobTracker) NewTrackedWriter(w io.Writer, jobID string, startBytes int64) *TrackedWriter {
	return &TrackedWriter{
		Writer:          w,
		tracker:         jt,
		jobID:           jobID,
		bytesWritten:    startBytes,
		lastCheckpoint:  startBytes,
		lastCheckpointT: time.Now(),
	}
}

// Write implements io.Writer and checkpoints progress
func (tw *TrackedWriter) Write(p []byte) (int, error) {
	n, err := tw.Writer.Write(p)
	if n > 0 {
		tw.mu.Lock()
		tw.bytesWritten += int64(n)

		needsCheckpoint := false
		if tw.tracker != nil {
			if tw.bytesWritten-tw.lastCheckpoint >= tw.tracker.config.BytesInterval {
				needsCheckpoint = true
			} else if time.Since(tw.lastCheckpointT) >= tw.tracker.config.TimeInterval {
				needsCheckpoint = true
			}
		}

		currentBytes := tw.bytesWritten
		tw.mu.Unlock()

		if needsCheckpoint {
			tw.checkpoint(currentBytes)
		}
	}
	return n, err
}

func (tw *TrackedWriter) checkpoint(bytes int64) {
	// A failed checkpoint only loses progress detail, never the transfer.
	err := tw.tracker.update(tw.jobID, func(r *store.JobRecord) {
		r.BytesTransferred = bytes
	})
	if err == nil {
		tw.mu.Lock()
		tw.lastCheckpoint = bytes
		tw.lastCheckpointT = time.Now()
		tw.mu.Unlock()
	}
}

// BytesWritten returns the total number of bytes written
func (tw *TrackedWriter) BytesWritten() int64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten
}
