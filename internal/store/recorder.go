package store

import (
	"context"

	"github.com/forcedotcom/sf-fx-bulk/internal/store/model"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
)

// Recorder writes the jobs reported by a bulk.Client to the ledger.
type Recorder struct {
	store Store
}

var _ bulk.JobRecorder = (*Recorder)(nil)

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

func (r *Recorder) RecordJob(ctx context.Context, rec bulk.JobRecord) error {
	_, err := r.store.Job().Record(ctx, model.Job{
		JobID:      rec.JobID,
		Kind:       rec.Kind,
		Object:     rec.Object,
		Operation:  rec.Operation,
		ChunkIndex: rec.ChunkIndex,
		Records:    rec.Records,
		State:      rec.State,
		ErrorCode:  rec.ErrorCode,
		Message:    rec.Message,
	})
	return err
}
