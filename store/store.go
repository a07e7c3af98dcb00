package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a per-file record is not in the store.
	ErrJobNotFound = errors.New("job not found")
	// ErrBatchNotFound is returned when a batch is not in the store.
	ErrBatchNotFound = errors.New("batch not found")
)

var (
	jobsBucket    = []byte("jobs")
	batchesBucket = []byte("batches")
)

// JobState is the lifecycle state of one file's transfer.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// JobRecord is the persisted view of one file's transfer attempt.
type JobRecord struct {
	ID               string    `json:"id"`
	BatchID          string    `json:"batch_id"`
	Index            int       `json:"index"`
	FileName         string    `json:"file_name"`
	SourcePath       string    `json:"source_path"`
	DestinationPath  string    `json:"destination_path"`
	Mode             string    `json:"mode"`
	State            JobState  `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Checksum         string    `json:"checksum,omitempty"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BatchRecord is the persisted view of one transfer request.
type BatchRecord struct {
	ID                  string    `json:"id"`
	Mode                string    `json:"mode"`
	SourceLocation      string    `json:"source_location"`
	SourcePath          string    `json:"source_path"`
	DestinationLocation string    `json:"destination_location"`
	DestinationPath     string    `json:"destination_path"`
	Total               int       `json:"total"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	ChecksumMismatches  int       `json:"checksum_mismatches"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at,omitzero"`
}

// Store persists the audit trail of batches and their per-file records.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	ListJobs(batchID string) ([]*JobRecord, error)
	SaveBatch(batch *BatchRecord) error
	GetBatch(id string) (*BatchRecord, error)
	Close() error
}

// JobID builds the key of a file record. Zero padding keeps the keys of a
// batch in enumeration order under bbolt's byte-sorted cursor.
func JobID(batchID string, index int) string {
	return fmt.Sprintf("%s/%06d", batchID, index)
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path. It gives up after
// timeout if another process holds the file lock.
func NewBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{jobsBucket, batchesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) put(bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := tx.Bucket(bucket).Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to put record: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) get(bucket []byte, key string, notFound error, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return notFound
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})
}

// SaveJob saves a file record.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	return s.put(jobsBucket, job.ID, job)
}

// GetJob retrieves a file record.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	if err := s.get(jobsBucket, id, ErrJobNotFound, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the file records of a batch in enumeration order.
func (s *BoltStore) ListJobs(batchID string) ([]*JobRecord, error) {
	var jobs []*JobRecord
	prefix := []byte(batchID + "/")

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var job JobRecord
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			jobs = append(jobs, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// SaveBatch saves a batch record.
func (s *BoltStore) SaveBatch(batch *BatchRecord) error {
	return s.put(batchesBucket, batch.ID, batch)
}

// GetBatch retrieves a batch record.
func (s *BoltStore) GetBatch(id string) (*BatchRecord, error) {
	var batch BatchRecord
	if err := s.get(batchesBucket, id, ErrBatchNotFound, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
