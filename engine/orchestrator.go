package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/franksops/filexfer/provider"
	"github.com/franksops/filexfer/store"
	"github.com/franksops/filexfer/translog"
)

// Resolver maps a location onto the provider serving it.
type Resolver interface {
	Resolve(ctx context.Context, location string) (provider.Provider, error)
}

// Uploader stores staged files on an FTP server and reads them back.
type Uploader interface {
	Upload(ctx context.Context, host string, port int, localPath, remoteName string) error
	Retrieve(ctx context.Context, host string, port int, remoteName string) (io.ReadCloser, error)
}

// Observer receives batch progress. With more than one worker, file events
// of one batch arrive concurrently.
type Observer interface {
	BatchStarted(batchID string, mode TransferMode, total int)
	FileStarted(job TransferJob)
	FileFinished(outcome TransferOutcome)
	BatchFinished(result *BatchResult)
}

// Payload is an uploaded file held by the caller.
type Payload struct {
	Name string
	Size int64
	Open Opener
}

// Options tunes an Orchestrator.
type Options struct {
	// Workers is the number of files of one batch processed at once.
	Workers int
	// StagingDir receives FTP files before upload.
	StagingDir string
	// VerifyRemote reads each uploaded file back to compare digests.
	VerifyRemote bool
	BufferSize   int
}

// DefaultOptions processes files one at a time and verifies FTP uploads.
func DefaultOptions() Options {
	return Options{
		Workers:      1,
		StagingDir:   os.TempDir(),
		VerifyRemote: true,
		BufferSize:   DefaultBufferSize,
	}
}

// Orchestrator runs transfer batches. A batch always completes once its
// request is valid: per-file failures become failed outcomes.
type Orchestrator struct {
	resolver Resolver
	uploader Uploader
	logs     *translog.Logger
	tracker  *JobTracker
	log      *slog.Logger
	opts     Options

	buffers   *BufferPool
	verifier  *Verifier
	observers []Observer

	now   func() time.Time
	newID func() string
}

// NewOrchestrator wires an Orchestrator. tracker may be nil.
func NewOrchestrator(resolver Resolver, uploader Uploader, logs *translog.Logger, tracker *JobTracker, log *slog.Logger, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	buffers := NewBufferPool(opts.BufferSize)
	return &Orchestrator{
		resolver: resolver,
		uploader: uploader,
		logs:     logs,
		tracker:  tracker,
		log:      log,
		opts:     opts,
		buffers:  buffers,
		verifier: NewVerifier(buffers),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// AddObserver registers obs for every later batch. Not safe to call while
// batches run.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// Validate checks req without touching storage.
func (o *Orchestrator) Validate(req TransferRequest) error {
	return req.Validate()
}

// Run transfers every file directly under the source directory. The error is
// non-nil only when the batch could not start.
func (o *Orchestrator) Run(ctx context.Context, req TransferRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	src, err := o.resolver.Resolve(ctx, req.SourceLocation)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}

	var dst provider.Provider
	if req.Mode() == ModeCopy {
		if dst, err = o.resolver.Resolve(ctx, req.DestinationLocation); err != nil {
			return nil, fmt.Errorf("resolve destination: %w", err)
		}
	}

	batchID := o.newID()
	jobs, err := NewWalker(src).Enumerate(ctx, batchID, req.SourcePath, req.DestinationPath)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Mode = req.Mode()
		if jobs[i].Mode == ModeFTP {
			jobs[i].DestinationPath = ftpTarget(req, jobs[i].FileName)
		}
	}

	return o.execute(ctx, batchID, req, jobs, src, dst), nil
}

// Upload sends caller-held payloads to the destination FTP server.
func (o *Orchestrator) Upload(ctx context.Context, req TransferRequest, payloads []Payload) (*BatchResult, error) {
	if err := req.ValidateUpload(); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, ErrNoFiles
	}

	batchID := o.newID()
	received := o.now()
	jobs := make([]TransferJob, len(payloads))
	for i, p := range payloads {
		name := filepath.Base(p.Name)
		jobs[i] = TransferJob{
			ID:              store.JobID(batchID, i),
			BatchID:         batchID,
			Index:           i,
			Mode:            ModeFTP,
			FileName:        name,
			SourcePath:      p.Name,
			DestinationPath: ftpTarget(req, name),
			FileInfo:        provider.NewFileInfo(name, p.Size, received),
			Open:            p.Open,
		}
	}

	return o.execute(ctx, batchID, req, jobs, nil, nil), nil
}

func ftpTarget(req TransferRequest, name string) string {
	return "ftp://" + net.JoinHostPort(req.DestinationFtpHost, strconv.Itoa(req.DestinationFtpPort)) + "/" + name
}

func (o *Orchestrator) workers(jobs int) int {
	return min(o.opts.Workers, jobs)
}

func (o *Orchestrator) execute(ctx context.Context, batchID string, req TransferRequest, jobs []TransferJob, src, dst provider.Provider) *BatchResult {
	result := &BatchResult{
		BatchID:   batchID,
		Mode:      req.Mode(),
		StartedAt: o.now(),
	}

	if err := o.tracker.BeginBatch(batchID, req, len(jobs), result.StartedAt); err != nil {
		o.log.Warn("could not record batch start", "batch", batchID, "error", err)
	}
	for _, obs := range o.observers {
		obs.BatchStarted(batchID, result.Mode, len(jobs))
	}
	o.log.Info("batch started", "batch", batchID, "mode", result.Mode, "files", len(jobs))

	outcomes := make([]TransferOutcome, len(jobs))
	done := make([]bool, len(jobs))

	jobChan := make(JobChannel, len(jobs))
	pool := NewWorkerPool(ctx, jobChan, o.workers(len(jobs)), func(ctx context.Context, job TransferJob) {
		outcomes[job.Index] = o.process(ctx, req, job, src, dst)
		done[job.Index] = true
	})
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)
	pool.Wait()

	// Jobs the pool never reached because ctx ended still get an outcome.
	for i, job := range jobs {
		if done[i] {
			continue
		}
		if err := o.tracker.InitJob(job); err != nil {
			o.log.Warn("could not record file", "job", job.ID, "error", err)
		}
		out := o.newOutcome(job)
		out.ErrorMessage = fmt.Sprintf("not attempted: %v", context.Cause(ctx))
		outcomes[i] = o.record(job, out)
	}

	result.Outcomes = outcomes
	result.Summary = Summarize(outcomes)
	result.FinishedAt = o.now()

	if err := o.tracker.FinishBatch(result); err != nil {
		o.log.Warn("could not record batch summary", "batch", batchID, "error", err)
	}
	for _, obs := range o.observers {
		obs.BatchFinished(result)
	}
	o.log.Info("batch completed",
		"batch", batchID,
		"succeeded", result.Summary.Succeeded,
		"failed", result.Summary.Failed,
		"checksum_mismatches", result.Summary.ChecksumMismatches,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result
}

func (o *Orchestrator) newOutcome(job TransferJob) TransferOutcome {
	return TransferOutcome{
		BatchID:         job.BatchID,
		Index:           job.Index,
		FileName:        job.FileName,
		SourcePath:      job.SourcePath,
		DestinationPath: job.DestinationPath,
		Mode:            job.Mode,
		Checksum:        ChecksumNotApplicable,
	}
}

func (o *Orchestrator) process(ctx context.Context, req TransferRequest, job TransferJob, src, dst provider.Provider) TransferOutcome {
	for _, obs := range o.observers {
		obs.FileStarted(job)
	}
	if err := o.tracker.InitJob(job); err != nil {
		o.log.Warn("could not record file", "job", job.ID, "error", err)
	}
	if err := o.tracker.MarkInProgress(job.ID); err != nil {
		o.log.Warn("could not record file progress", "job", job.ID, "error", err)
	}

	start := o.now()
	out := o.attempt(ctx, req, job, src, dst)
	out.Duration = o.now().Sub(start)

	return o.record(job, out)
}

// attempt transfers one file. A panic in a provider or payload becomes a
// failed outcome instead of taking the process down.
func (o *Orchestrator) attempt(ctx context.Context, req TransferRequest, job TransferJob, src, dst provider.Provider) (out TransferOutcome) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("file transfer panicked", "batch", job.BatchID, "file", job.FileName, "panic", r)
			out = o.newOutcome(job)
			out.ErrorMessage = fmt.Sprintf("panic: %v", r)
		}
	}()

	if job.Mode == ModeFTP {
		return o.uploadJob(ctx, req, job)
	}
	return o.copyJob(ctx, job, src, dst)
}

// record stamps the outcome and writes it to the log channels, the audit
// store and observers. Failures to record are reported on the service log
// and never change the outcome. It returns the stamped outcome.
func (o *Orchestrator) record(job TransferJob, out TransferOutcome) TransferOutcome {
	out.Timestamp = o.now()

	if out.TransferSucceeded {
		if err := o.logs.LogTransfer(job.FileName); err != nil {
			o.log.Warn("transfer log append failed", "channel", translog.ChannelTransfer, "error", err)
		}
	}
	if out.ErrorMessage != "" {
		if err := o.logs.LogTransferError(job.FileName, out.ErrorMessage); err != nil {
			o.log.Warn("transfer log append failed", "channel", translog.ChannelTransferError, "error", err)
		}
	}
	if out.Checksum != ChecksumNotApplicable {
		if err := o.logs.LogChecksum(job.FileName, out.ChecksumMatched()); err != nil {
			o.log.Warn("transfer log append failed", "channel", translog.ChannelChecksum, "error", err)
		}
	}

	if err := o.tracker.Finish(job.ID, out); err != nil {
		o.log.Warn("could not record file outcome", "job", job.ID, "error", err)
	}
	for _, obs := range o.observers {
		obs.FileFinished(out)
	}

	if out.Succeeded() {
		o.log.Info("file transferred", "batch", job.BatchID, "file", job.FileName, "bytes", out.Bytes, "checksum", out.Checksum)
	} else {
		o.log.Warn("file transfer failed", "batch", job.BatchID, "file", job.FileName, "checksum", out.Checksum, "error", out.ErrorMessage)
	}
	return out
}

func (o *Orchestrator) copyJob(ctx context.Context, job TransferJob, src, dst provider.Provider) TransferOutcome {
	out := o.newOutcome(job)

	// Opening the destination truncates it, which would wipe a source that
	// is the same file.
	if provider.SameFile(src, job.SourcePath, dst, job.DestinationPath) {
		out.ErrorMessage = ioError("copy "+job.FileName, ErrSameFile).Error()
		return out
	}

	n, err := o.copyFile(ctx, job, dst)
	out.Bytes = n
	if err != nil {
		out.ErrorMessage = err.Error()
		return out
	}
	out.TransferSucceeded = true

	ok, err := o.verifier.Matches(ctx, Source{src, job.SourcePath}, Source{dst, job.DestinationPath})
	switch {
	case err != nil:
		out.Checksum = ChecksumMismatched
		out.ErrorMessage = fmt.Sprintf("verify: %v", err)
	case ok:
		out.Checksum = ChecksumMatched
	default:
		out.Checksum = ChecksumMismatched
	}
	return out
}

func (o *Orchestrator) copyFile(ctx context.Context, job TransferJob, dst provider.Provider) (int64, error) {
	rc, err := job.Open(ctx)
	if err != nil {
		return 0, ioError("open "+job.SourcePath, err)
	}
	defer rc.Close()

	wc, err := dst.OpenWrite(ctx, job.DestinationPath, job.FileInfo)
	if err != nil {
		return 0, ioError("create "+job.DestinationPath, err)
	}

	buf := o.buffers.Get()
	defer o.buffers.Put(buf)

	tw := o.tracker.NewTrackedWriter(wc, job.ID, 0)
	_, copyErr := io.CopyBuffer(tw, rc, *buf)
	closeErr := wc.Close()

	if copyErr != nil {
		return tw.BytesWritten(), ioError("copy "+job.FileName, copyErr)
	}
	if closeErr != nil {
		return tw.BytesWritten(), ioError("close "+job.DestinationPath, closeErr)
	}
	return tw.BytesWritten(), nil
}

func (o *Orchestrator) uploadJob(ctx context.Context, req TransferRequest, job TransferJob) TransferOutcome {
	out := o.newOutcome(job)

	staged, local, n, err := o.stage(ctx, job)
	out.Bytes = n
	if err != nil {
		out.ErrorMessage = err.Error()
		return out
	}
	defer o.removeStaged(staged)

	host, port := req.DestinationFtpHost, req.DestinationFtpPort
	if err := o.uploader.Upload(ctx, host, port, staged, job.FileName); err != nil {
		out.ErrorMessage = err.Error()
		return out
	}
	out.TransferSucceeded = true

	if !o.opts.VerifyRemote {
		return out
	}

	remote, err := o.remoteDigest(ctx, host, port, job.FileName)
	switch {
	case err != nil:
		out.Checksum = ChecksumMismatched
		out.ErrorMessage = fmt.Sprintf("verify: %v", err)
	case VerifyChecksum(local, remote):
		out.Checksum = ChecksumMatched
	default:
		out.Checksum = ChecksumMismatched
	}
	return out
}

// stage copies the job's content to a uniquely named local file and digests
// it on the way. On failure nothing is left behind.
func (o *Orchestrator) stage(ctx context.Context, job TransferJob) (string, Digest, int64, error) {
	rc, err := job.Open(ctx)
	if err != nil {
		return "", Digest{}, 0, ioError("open "+job.SourcePath, err)
	}
	defer rc.Close()

	path := filepath.Join(o.opts.StagingDir, uuid.NewString()+"-"+job.FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", Digest{}, 0, ioError("stage "+job.FileName, err)
	}

	buf := o.buffers.Get()
	defer o.buffers.Put(buf)

	cr := NewChecksumReader(rc)
	_, err = io.CopyBuffer(struct{ io.Writer }{f}, cr, *buf)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		o.removeStaged(path)
		return "", Digest{}, cr.BytesRead(), ioError("stage "+job.FileName, err)
	}
	return path, cr.Digest(), cr.BytesRead(), nil
}

func (o *Orchestrator) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.log.Warn("could not remove staged file", "path", path, "error", err)
	}
}

func (o *Orchestrator) remoteDigest(ctx context.Context, host string, port int, name string) (Digest, error) {
	rc, err := o.uploader.Retrieve(ctx, host, port, name)
	if err != nil {
		return Digest{}, err
	}
	defer rc.Close()

	d, err := o.verifier.Digest(rc)
	if err != nil {
		return Digest{}, fmt.Errorf("read back %s: %w", name, err)
	}
	return d, nil
}
