package port

import "debias/internal/domain"

// JobStore tracks pipeline runs triggered through the API.
type JobStore interface {
	// Put creates or replaces a job record.
	Put(job domain.Job) error

	// Get returns a job by ID.
	Get(id string) (domain.Job, error)

	// SetStatus updates a job's status, recording an error message for
	// failed runs.
	SetStatus(id string, status domain.JobStatus, errMsg string) error

	// List returns all known jobs.
	List() ([]domain.Job, error)
}
