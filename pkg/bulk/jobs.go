package bulk

import (
	"context"

	"github.com/forcedotcom/sf-fx-bulk/internal/events"
	"go.uber.org/zap"
)

// JobStateDeleted is recorded for jobs removed from the remote service.
const JobStateDeleted = "Deleted"

// GetInfo fetches a fresh snapshot of the job.
func (c *Client) GetInfo(ctx context.Context, ref JobReference) (JobInfo, error) {
	h, err := jobHandle(ref)
	if err != nil {
		return nil, err
	}
	w, err := c.api.GetJobInfo(ctx, h)
	if err != nil {
		return nil, err
	}
	return decodeJobInfo(ref, w)
}

func (c *Client) Abort(ctx context.Context, ref JobReference) error {
	h, err := jobHandle(ref)
	if err != nil {
		return err
	}
	info, err := c.api.AbortJob(ctx, h)
	if err != nil {
		return err
	}

	c.log.Info("job aborted", zap.String("job_id", h.ID), zap.String("kind", string(h.Kind)))
	c.publish(ctx, events.JobAbortedKind, events.JobEvent{
		JobID:     h.ID,
		JobKind:   string(h.Kind),
		Object:    info.Object,
		Operation: info.Operation,
	})
	c.record(ctx, JobRecord{JobID: h.ID, Kind: string(h.Kind), Object: info.Object, Operation: info.Operation, State: info.State})
	return nil
}

func (c *Client) Delete(ctx context.Context, ref JobReference) error {
	h, err := jobHandle(ref)
	if err != nil {
		return err
	}
	if err := c.api.DeleteJob(ctx, h); err != nil {
		return err
	}

	c.log.Info("job deleted", zap.String("job_id", h.ID), zap.String("kind", string(h.Kind)))
	c.publish(ctx, events.JobDeletedKind, events.JobEvent{JobID: h.ID, JobKind: string(h.Kind)})
	c.record(ctx, JobRecord{JobID: h.ID, Kind: string(h.Kind), State: JobStateDeleted})
	return nil
}
