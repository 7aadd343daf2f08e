package bulk

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

const DefaultWaitInterval = 5 * time.Second

// WaitForJob polls the job until it reaches a terminal state and returns the
// last snapshot read. Polling stops with the context error when ctx is done.
func WaitForJob(ctx context.Context, api API, ref JobReference, interval time.Duration) (JobInfo, error) {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}

	info, err := api.GetInfo(ctx, ref)
	if err != nil {
		return nil, err
	}
	if info.JobState().Terminal() {
		return info, nil
	}

	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-ticker.C:
		}

		info, err = api.GetInfo(ctx, ref)
		if err != nil {
			return nil, err
		}
		if info.JobState().Terminal() {
			return info, nil
		}
	}
}
