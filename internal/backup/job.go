package backup

import (
	"context"
	"errors"
)

// JobName labels the periodic snapshot job in logs and metrics.
const JobName = "snapshot-backup"

// Job adapts the snapshot engine to the scheduler.
type Job struct {
	service *Service
}

// NewJob builds the periodic backup job.
func NewJob(service *Service) (*Job, error) {
	if service == nil {
		return nil, errors.New("backup service is required")
	}
	return &Job{service: service}, nil
}

// Name implements scheduler.Job.
func (j *Job) Name() string {
	return JobName
}

// Run performs one capture+persist cycle.
func (j *Job) Run(ctx context.Context) error {
	_, err := j.service.Backup(ctx)
	return err
}
