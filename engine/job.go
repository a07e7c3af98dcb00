package engine

import (
	"context"
	"io"

	"github.com/franksops/filexfer/provider"
)

// TransferMode selects how a batch moves its files.
type TransferMode string

const (
	// ModeCopy copies files between two locations and verifies both ends.
	ModeCopy TransferMode = "copy"
	// ModeFTP stages each file locally and uploads it to an FTP server.
	ModeFTP TransferMode = "ftp"
)

// Opener opens the content of a job's source file.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// TransferJob is one file of a batch.
type TransferJob struct {
	// ID keys the job in the audit store.
	ID string

	BatchID string

	// Index is the position of the file in enumeration order.
	Index int

	Mode TransferMode

	FileName string

	// SourcePath is the file path within the source location.
	SourcePath string

	// DestinationPath is the file path within the destination location, or
	// the remote name for FTP jobs.
	DestinationPath string

	// FileInfo holds the source metadata, preserved at the destination when
	// the location supports it.
	FileInfo provider.FileInfo

	// Open yields the file content.
	Open Opener
}

// JobChannel queues TransferJobs for the worker pool.
type JobChannel chan TransferJob
