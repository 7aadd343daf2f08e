package bulk

import (
	"context"
	"strconv"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/internal/events"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/forcedotcom/sf-fx-bulk/pkg/metrics"
	"go.uber.org/zap"
)

type QueryOptions struct {
	SOQL string `validate:"required"`

	// Operation defaults to OperationQuery. OperationQueryAll also returns
	// deleted and archived records.
	Operation Operation `validate:"omitempty,query_operation"`
}

// QueryJobResults is one page of query results.
type QueryJobResults struct {
	Done            bool
	NumberOfRecords int

	// Locator resumes reading after this page. It is empty exactly when Done is true.
	Locator      string
	DataTable    datatable.DataTable
	JobReference QueryJobReference
}

type resultsOptions struct {
	maxRecords int
}

type ResultsOption func(o *resultsOptions)

// WithMaxRecords bounds the number of records of a page.
func WithMaxRecords(n int) ResultsOption {
	return func(o *resultsOptions) {
		o.maxRecords = n
	}
}

func (c *Client) Query(ctx context.Context, opts QueryOptions) (QueryJobReference, error) {
	if err := validateOptions(opts); err != nil {
		return QueryJobReference{}, err
	}
	if opts.Operation == "" {
		opts.Operation = OperationQuery
	}

	info, err := c.api.CreateQueryJob(ctx, bulkapi.CreateQueryJobRequest{
		Operation: string(opts.Operation),
		Query:     opts.SOQL,
	})
	if err != nil {
		return QueryJobReference{}, err
	}

	ref := QueryJobReference{ID: info.ID}
	metrics.IncreaseJobsCreatedMetric(string(bulkapi.QueryJob))
	c.log.Debug("query job created", zap.String("job_id", ref.ID), zap.String("object", info.Object))
	c.publish(ctx, events.QueryJobCreatedKind, events.JobEvent{
		JobID:     ref.ID,
		JobKind:   string(bulkapi.QueryJob),
		Object:    info.Object,
		Operation: string(opts.Operation),
	})
	c.record(ctx, JobRecord{
		JobID:     ref.ID,
		Kind:      string(bulkapi.QueryJob),
		Object:    info.Object,
		Operation: string(opts.Operation),
		State:     info.State,
	})
	return ref, nil
}

// GetQueryResults reads the first page of results of a query job.
func (c *Client) GetQueryResults(ctx context.Context, ref QueryJobReference, opts ...ResultsOption) (*QueryJobResults, error) {
	return c.queryPage(ctx, ref, "", opts...)
}

// GetMoreQueryResults reads the page following prev. Calls must be chained
// on the page returned by the previous call. Once prev is Done no request is
// made and an *APIError with code NO_MORE_RESULTS is returned, so the first
// page is never read again by accident.
func (c *Client) GetMoreQueryResults(ctx context.Context, prev *QueryJobResults, opts ...ResultsOption) (*QueryJobResults, error) {
	if prev == nil || prev.Done || prev.Locator == "" {
		return nil, bulkapi.NewAPIError(ErrorCodeNoMoreResults, "no more results to read")
	}
	return c.queryPage(ctx, prev.JobReference, prev.Locator, opts...)
}

func (c *Client) queryPage(ctx context.Context, ref QueryJobReference, locator string, opts ...ResultsOption) (*QueryJobResults, error) {
	o := resultsOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := jobHandle(ref)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.GetQueryResults(ctx, h, locator, o.maxRecords)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	t, err := datatable.Decode(resp.Body)
	if err != nil {
		return nil, bulkapi.WrapError(ErrorCodeUnknown, err)
	}

	next := nextLocator(resp.Header.Get(bulkapi.LocatorHeader))
	n, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get(bulkapi.NumberOfRecordsHeader)))
	if err != nil {
		n = t.Len()
	}

	c.log.Debug("query results page read",
		zap.String("job_id", ref.ID),
		zap.Int("records", n),
		zap.Bool("done", next == ""))

	return &QueryJobResults{
		Done:            next == "",
		NumberOfRecords: n,
		Locator:         next,
		DataTable:       t,
		JobReference:    ref,
	}, nil
}

// nextLocator returns the cursor of the following page, or "" when the
// header is absent or carries the literal "null".
func nextLocator(header string) string {
	header = strings.TrimSpace(header)
	if header == "" || header == "null" {
		return ""
	}
	return header
}
