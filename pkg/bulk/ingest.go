package bulk

import (
	"context"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/internal/events"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/forcedotcom/sf-fx-bulk/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type IngestOptions struct {
	Object    string    `validate:"required"`
	Operation Operation `validate:"required,ingest_operation"`

	// ExternalIDFieldName names the field matched on upsert.
	ExternalIDFieldName string `validate:"required_if=Operation upsert"`
	DataTable           datatable.DataTable
}

func (c *Client) Ingest(ctx context.Context, opts IngestOptions) ([]IngestJobResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	chunks := c.SplitDataTable(opts.DataTable)
	results := make([]IngestJobResult, len(chunks))

	c.log.Info("starting ingest",
		zap.String("object", opts.Object),
		zap.String("operation", string(opts.Operation)),
		zap.Int("records", opts.DataTable.Len()),
		zap.Int("chunks", len(chunks)))

	// chunk failures are captured in results, so the group never sees an error
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = c.ingestChunk(ctx, opts, i, chunk)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// ingestChunk runs the create, upload and close cycle of one chunk.
func (c *Client) ingestChunk(ctx context.Context, opts IngestOptions, index int, chunk datatable.DataTable) IngestJobResult {
	info, err := c.api.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{
		Object:              opts.Object,
		Operation:           string(opts.Operation),
		ExternalIDFieldName: opts.ExternalIDFieldName,
	})
	if err != nil {
		return c.chunkFailure(ctx, opts, index, chunk, nil, err)
	}

	ref := IngestJobReference{ID: info.ID}
	metrics.IncreaseJobsCreatedMetric(string(bulkapi.IngestJob))
	c.log.Debug("ingest job created", zap.String("job_id", ref.ID), zap.Int("chunk", index))
	c.publish(ctx, events.IngestJobCreatedKind, events.JobEvent{
		JobID:      ref.ID,
		JobKind:    string(bulkapi.IngestJob),
		Object:     opts.Object,
		Operation:  string(opts.Operation),
		ChunkIndex: &index,
		Records:    chunk.Len(),
	})

	h := bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: ref.ID}
	if err := c.upload(ctx, h, chunk); err != nil {
		return c.chunkFailure(ctx, opts, index, chunk, &ref, err)
	}

	closed, err := c.api.CloseIngestJob(ctx, h)
	if err != nil {
		return c.chunkFailure(ctx, opts, index, chunk, &ref, err)
	}

	metrics.IncreaseIngestChunksMetric(metrics.ChunkResultOK)
	c.record(ctx, JobRecord{
		JobID:      ref.ID,
		Kind:       string(bulkapi.IngestJob),
		Object:     opts.Object,
		Operation:  string(opts.Operation),
		ChunkIndex: index,
		Records:    chunk.Len(),
		State:      closed.State,
	})
	return ref
}

// upload streams the chunk as CSV into the job.
func (c *Client) upload(ctx context.Context, h bulkapi.JobHandle, chunk datatable.DataTable) error {
	stream := c.api.OpenUpload(ctx, h)
	enc := datatable.NewEncoder(stream, chunk.Columns())

	if err := enc.WriteHeader(); err != nil {
		return stream.CloseWithError(err)
	}
	for i := range chunk.Len() {
		if err := enc.WriteRow(chunk.Row(i)); err != nil {
			return stream.CloseWithError(err)
		}
	}
	if err := enc.Flush(); err != nil {
		return stream.CloseWithError(err)
	}
	return stream.Close()
}

func (c *Client) chunkFailure(ctx context.Context, opts IngestOptions, index int, chunk datatable.DataTable, ref *IngestJobReference, err error) *IngestJobFailure {
	apiErr := bulkapi.Classify(err)
	f := &IngestJobFailure{
		Err:                apiErr,
		JobReference:       ref,
		UnprocessedRecords: chunk,
	}

	jobID := ""
	if ref != nil {
		jobID = ref.ID
	}

	metrics.IncreaseIngestChunksMetric(metrics.ChunkResultFailed)
	c.log.Warn("ingest chunk failed",
		zap.Int("chunk", index),
		zap.String("job_id", jobID),
		zap.String("error_code", apiErr.ErrorCode),
		zap.Error(apiErr))
	c.publish(ctx, events.IngestChunkFailedKind, events.JobEvent{
		JobID:      jobID,
		JobKind:    string(bulkapi.IngestJob),
		Object:     opts.Object,
		Operation:  string(opts.Operation),
		ChunkIndex: &index,
		Records:    chunk.Len(),
		ErrorCode:  apiErr.ErrorCode,
		Message:    apiErr.Message,
	})
	c.record(ctx, JobRecord{
		JobID:      jobID,
		Kind:       string(bulkapi.IngestJob),
		Object:     opts.Object,
		Operation:  string(opts.Operation),
		ChunkIndex: index,
		Records:    chunk.Len(),
		State:      string(StateFailed),
		ErrorCode:  apiErr.ErrorCode,
		Message:    apiErr.Message,
	})
	return f
}
