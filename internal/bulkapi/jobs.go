package bulkapi

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

type JobKind string

const (
	IngestJob JobKind = "ingest"
	QueryJob  JobKind = "query"
)

// JobHandle addresses a remote job independently of how the caller
// references it.
type JobHandle struct {
	Kind JobKind
	ID   string
}

func (h JobHandle) path(elem ...string) string {
	parts := append([]string{string(h.Kind), url.PathEscape(h.ID)}, elem...)
	return path.Join(parts...)
}

const (
	JobTypeV2Ingest        = "V2Ingest"
	JobTypeV2Query         = "V2Query"
	JobTypeBigObjectIngest = "BigObjectIngest"
	JobTypeClassic         = "Classic"
)

const (
	StateOpen           = "Open"
	StateUploadComplete = "UploadComplete"
	StateInProgress     = "InProgress"
	StateAborted        = "Aborted"
	StateJobComplete    = "JobComplete"
	StateFailed         = "Failed"
)

// Result set names of an ingest job.
type IngestResultKind string

const (
	SuccessfulResults  IngestResultKind = "successfulResults"
	FailedResults      IngestResultKind = "failedResults"
	UnprocessedRecords IngestResultKind = "unprocessedrecords"
)

const (
	LocatorHeader         = "Sforce-Locator"
	NumberOfRecordsHeader = "Sforce-NumberOfRecords"
)

// Timestamp accepts the remote "2006-01-02T15:04:05.000-0700" layout as well
// as RFC 3339. Null and empty values decode to the zero time.
type Timestamp struct {
	time.Time
}

const timestampLayout = "2006-01-02T15:04:05.000-0700"

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(timestampLayout))), nil
}

// JobInfo is the wire form of job metadata, shared by ingest and query jobs.
type JobInfo struct {
	ID                      string    `json:"id"`
	Operation               string    `json:"operation"`
	Object                  string    `json:"object"`
	CreatedByID             string    `json:"createdById"`
	CreatedDate             Timestamp `json:"createdDate"`
	SystemModstamp          Timestamp `json:"systemModstamp"`
	State                   string    `json:"state"`
	ExternalIDFieldName     string    `json:"externalIdFieldName,omitempty"`
	ConcurrencyMode         string    `json:"concurrencyMode"`
	ContentType             string    `json:"contentType"`
	APIVersion              float64   `json:"apiVersion"`
	JobType                 string    `json:"jobType"`
	LineEnding              string    `json:"lineEnding"`
	ColumnDelimiter         string    `json:"columnDelimiter"`
	NumberRecordsProcessed  int64     `json:"numberRecordsProcessed"`
	NumberRecordsFailed     int64     `json:"numberRecordsFailed"`
	Retries                 int64     `json:"retries"`
	TotalProcessingTime     int64     `json:"totalProcessingTime"`
	APIActiveProcessingTime int64     `json:"apiActiveProcessingTime"`
	ApexProcessingTime      int64     `json:"apexProcessingTime"`
	ErrorMessage            string    `json:"errorMessage,omitempty"`
	IsPkChunkingSupported   bool      `json:"isPkChunkingSupported,omitempty"`
}

type CreateIngestJobRequest struct {
	Object              string `json:"object"`
	Operation           string `json:"operation"`
	ExternalIDFieldName string `json:"externalIdFieldName,omitempty"`
	ContentType         string `json:"contentType"`
	LineEnding          string `json:"lineEnding"`
	ColumnDelimiter     string `json:"columnDelimiter"`
}

type CreateQueryJobRequest struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
}

type stateUpdate struct {
	State string `json:"state"`
}

func (c *Client) CreateIngestJob(ctx context.Context, req CreateIngestJobRequest) (*JobInfo, error) {
	req.ContentType = "CSV"
	req.LineEnding = "LF"
	req.ColumnDelimiter = "COMMA"

	var info JobInfo
	if err := c.DoJSON(ctx, http.MethodPost, string(IngestJob), req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CloseIngestJob marks the upload of an ingest job complete, queueing it for processing.
func (c *Client) CloseIngestJob(ctx context.Context, h JobHandle) (*JobInfo, error) {
	return c.updateState(ctx, h, StateUploadComplete)
}

func (c *Client) AbortJob(ctx context.Context, h JobHandle) (*JobInfo, error) {
	return c.updateState(ctx, h, StateAborted)
}

func (c *Client) updateState(ctx context.Context, h JobHandle, state string) (*JobInfo, error) {
	var info JobInfo
	if err := c.DoJSON(ctx, http.MethodPatch, h.path(), stateUpdate{State: state}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) DeleteJob(ctx context.Context, h JobHandle) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: h.path()}, nil)
}

func (c *Client) GetJobInfo(ctx context.Context, h JobHandle) (*JobInfo, error) {
	var info JobInfo
	if err := c.DoJSON(ctx, http.MethodGet, h.path(), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetIngestResults opens one of the CSV result sets of an ingest job.
func (c *Client) GetIngestResults(ctx context.Context, h JobHandle, kind IngestResultKind) (*Response, error) {
	return c.Stream(ctx, &Request{
		Method: http.MethodGet,
		Path:   h.path(string(kind)),
		Accept: ContentTypeCSV,
	})
}

func (c *Client) CreateQueryJob(ctx context.Context, req CreateQueryJobRequest) (*JobInfo, error) {
	var info JobInfo
	if err := c.DoJSON(ctx, http.MethodPost, string(QueryJob), req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetQueryResults opens a page of query results. An empty locator requests
// the first page and a non positive maxRecords leaves the page size to the server.
func (c *Client) GetQueryResults(ctx context.Context, h JobHandle, locator string, maxRecords int) (*Response, error) {
	q := url.Values{}
	if locator != "" {
		q.Set("locator", locator)
	}
	if maxRecords > 0 {
		q.Set("maxRecords", strconv.Itoa(maxRecords))
	}
	return c.Stream(ctx, &Request{
		Method: http.MethodGet,
		Path:   h.path("results"),
		Query:  q,
		Accept: ContentTypeCSV,
	})
}
