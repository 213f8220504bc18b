package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"debias/internal/domain"
)

// CurrentSchemaVersion is the job database schema version. Increment on
// breaking changes to the stored job format.
const CurrentSchemaVersion = 1

var (
	bucketJobs       = []byte("jobs")
	bucketMeta       = []byte("meta")
	keySchemaVersion = []byte("schema_version")
)

// BoltJobStore persists job records in a BoltDB file so job status survives
// server restarts.
type BoltJobStore struct {
	db *bbolt.DB
}

// NewBoltJobStore opens (or creates) the job database at path.
func NewBoltJobStore(path string) (*BoltJobStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open job db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		version, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, version)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltJobStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltJobStore) Close() error {
	return s.db.Close()
}

// Put creates or replaces a job record.
func (s *BoltJobStore) Put(job domain.Job) error {
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().Unix()
	}
	job.UpdatedAt = time.Now().Unix()

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(job.ID), data)
	})
}

// Get returns a job by ID.
func (s *BoltJobStore) Get(id string) (domain.Job, error) {
	var job domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job not found: %s", id)
		}
		return json.Unmarshal(data, &job)
	})
	return job, err
}

// SetStatus updates a job's status and error message.
func (s *BoltJobStore) SetStatus(id string, status domain.JobStatus, errMsg string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job not found: %s", id)
		}
		var job domain.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		job.Status = status
		job.Error = errMsg
		job.UpdatedAt = time.Now().Unix()
		updated, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// List returns all known jobs.
func (s *BoltJobStore) List() ([]domain.Job, error) {
	var jobs []domain.Job
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var job domain.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return nil // skip corrupted entries
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	return jobs, err
}
