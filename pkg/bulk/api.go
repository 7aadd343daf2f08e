// Package bulk runs ingest and query jobs against the remote bulk job
// service. Large tables are split into size bounded chunks, each uploaded to
// its own ingest job, and query results are read page by page.
package bulk

import (
	"context"
	"net/http"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/internal/events"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"go.uber.org/zap"
)

// Connection describes how to reach the remote service.
type Connection = bulkapi.Connection

type API interface {
	// Ingest splits the table into chunks and runs one ingest job per chunk.
	// The returned slice holds one result per chunk, in chunk order. The
	// error is only set when the options are invalid.
	Ingest(ctx context.Context, opts IngestOptions) ([]IngestJobResult, error)
	Query(ctx context.Context, opts QueryOptions) (QueryJobReference, error)
	GetInfo(ctx context.Context, ref JobReference) (JobInfo, error)
	GetQueryResults(ctx context.Context, ref QueryJobReference, opts ...ResultsOption) (*QueryJobResults, error)
	GetMoreQueryResults(ctx context.Context, prev *QueryJobResults, opts ...ResultsOption) (*QueryJobResults, error)
	GetSuccessfulResults(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error)
	GetFailedResults(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error)
	GetUnprocessedRecords(ctx context.Context, ref IngestJobReference) (datatable.DataTable, error)
	Abort(ctx context.Context, ref JobReference) error
	Delete(ctx context.Context, ref JobReference) error
	CreateDataTableBuilder(columns ...string) *datatable.Builder
	SplitDataTable(t datatable.DataTable) []datatable.DataTable
}

// JobRecord describes a job opened, or a chunk that failed, during a call.
type JobRecord struct {
	JobID      string
	Kind       string
	Object     string
	Operation  string
	ChunkIndex int
	Records    int
	State      string
	ErrorCode  string
	Message    string
}

// JobRecorder keeps track of the jobs created through the client.
type JobRecorder interface {
	RecordJob(ctx context.Context, rec JobRecord) error
}

type Option func(c *Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.Named("bulk")
			c.apiOpts = append(c.apiOpts, bulkapi.WithLogger(l))
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.apiOpts = append(c.apiOpts, bulkapi.WithHTTPClient(h))
	}
}

func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.apiOpts = append(c.apiOpts, bulkapi.WithRateLimit(rps, burst))
	}
}

// WithIngestConcurrency sets how many chunks are ingested at the same time.
// Values below 1 are treated as 1.
func WithIngestConcurrency(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithChunkSizeLimit overrides the serialized size chunks must stay under.
func WithChunkSizeLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.chunkSizeLimit = limit
		}
	}
}

func WithEventProducer(p *events.EventProducer) Option {
	return func(c *Client) {
		c.events = p
	}
}

func WithJobRecorder(r JobRecorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// Client implements API on top of the bulk api transport.
type Client struct {
	api            *bulkapi.Client
	apiOpts        []bulkapi.Option
	log            *zap.Logger
	concurrency    int
	chunkSizeLimit int
	events         *events.EventProducer
	recorder       JobRecorder
}

var _ API = (*Client)(nil)

func New(conn Connection, opts ...Option) *Client {
	c := &Client{
		log:            zap.NewNop(),
		concurrency:    1,
		chunkSizeLimit: datatable.DefaultChunkSizeLimit,
	}
	for _, o := range opts {
		o(c)
	}
	c.api = bulkapi.NewClient(conn, c.apiOpts...)
	return c
}

func (c *Client) CreateDataTableBuilder(columns ...string) *datatable.Builder {
	return datatable.NewBuilder(columns...)
}

func (c *Client) SplitDataTable(t datatable.DataTable) []datatable.DataTable {
	return datatable.SplitWithLimit(t, c.chunkSizeLimit)
}

func (c *Client) publish(ctx context.Context, kind string, e events.JobEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, kind, e); err != nil {
		c.log.Warn("failed to publish event", zap.String("kind", kind), zap.Error(err))
	}
}

func (c *Client) record(ctx context.Context, rec JobRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordJob(ctx, rec); err != nil {
		c.log.Warn("failed to record job", zap.String("job_id", rec.JobID), zap.Error(err))
	}
}
