package store

import (
	"context"
	"errors"

	"github.com/forcedotcom/sf-fx-bulk/internal/store/model"
	"gorm.io/gorm"
)

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Record(ctx context.Context, job model.Job) (*model.Job, error)
}

type JobStore struct {
	db *gorm.DB
}

var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := j.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&jobs).Find(&jobs).Error; err != nil {
		return nil, err
	}

	return jobs, nil
}

// Get returns the latest entry recorded for jobID.
func (j *JobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job := model.Job{}
	if err := j.getDB(ctx).Where("job_id = ?", jobID).Order("id desc").First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Record stores job. An entry already recorded under the same JobID is
// updated in place; entries without a JobID are always appended.
func (j *JobStore) Record(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.JobID == "" {
		if err := j.getDB(ctx).Create(&job).Error; err != nil {
			return nil, err
		}
		return &job, nil
	}

	existing, err := j.Get(ctx, job.JobID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		if err := j.getDB(ctx).Create(&job).Error; err != nil {
			return nil, err
		}
		return &job, nil
	case err != nil:
		return nil, err
	}

	mergeJob(existing, job)
	if err := j.getDB(ctx).Save(existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// mergeJob copies the non zero fields of update onto dst.
func mergeJob(dst *model.Job, update model.Job) {
	if update.Kind != "" {
		dst.Kind = update.Kind
	}
	if update.Object != "" {
		dst.Object = update.Object
	}
	if update.Operation != "" {
		dst.Operation = update.Operation
	}
	if update.ChunkIndex != 0 {
		dst.ChunkIndex = update.ChunkIndex
	}
	if update.Records != 0 {
		dst.Records = update.Records
	}
	if update.State != "" {
		dst.State = update.State
	}
	if update.ErrorCode != "" {
		dst.ErrorCode = update.ErrorCode
		dst.Message = update.Message
	}
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db.WithContext(ctx)
}
