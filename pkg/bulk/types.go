package bulk

import (
	"errors"
	"fmt"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
)

type APIError = bulkapi.APIError

const (
	ErrorCodeUnknown            = bulkapi.ErrorCodeUnknown
	ErrorCodeInvalidSession     = bulkapi.ErrorCodeInvalidSession
	ErrorCodeUnsupportedJobType = bulkapi.ErrorCodeUnsupportedJobType
	ErrorCodeInvalidOptions     = bulkapi.ErrorCodeInvalidOptions
	ErrorCodeNoMoreResults      = bulkapi.ErrorCodeNoMoreResults
)

var (
	// ErrSessionExpired is matched by errors.Is when the access token was rejected.
	ErrSessionExpired = bulkapi.ErrSessionExpired

	// ErrUnknownJobReference is returned for a JobReference implementation
	// this package does not know how to address.
	ErrUnknownJobReference = errors.New("unknown job reference")
)

// JobReference identifies a remote job. It is implemented by
// IngestJobReference and QueryJobReference only.
type JobReference interface {
	JobID() string
	jobReference()
}

type IngestJobReference struct {
	ID string `json:"id"`
}

func (r IngestJobReference) JobID() string { return r.ID }
func (IngestJobReference) jobReference() {}
func (IngestJobReference) ingestJobResult() {}

func (r IngestJobReference) String() string {
	return fmt.Sprintf("ingest/%s", r.ID)
}

type QueryJobReference struct {
	ID string `json:"id"`
}

func (r QueryJobReference) JobID() string { return r.ID }
func (QueryJobReference) jobReference() {}

func (r QueryJobReference) String() string {
	return fmt.Sprintf("query/%s", r.ID)
}

// IngestJobResult is the outcome of ingesting one chunk: either the
// IngestJobReference of the job that received it or an *IngestJobFailure.
type IngestJobResult interface {
	ingestJobResult()
}

// IngestJobFailure describes a chunk that was not fully ingested.
type IngestJobFailure struct {
	Err *APIError

	// JobReference is nil when the failure happened before the job was created.
	JobReference       *IngestJobReference
	UnprocessedRecords datatable.DataTable
}

func (*IngestJobFailure) ingestJobResult() {}

func (f *IngestJobFailure) Error() string {
	if f.JobReference == nil {
		return fmt.Sprintf("ingest failed before job creation: %s", f.Err)
	}
	return fmt.Sprintf("ingest job %s failed: %s", f.JobReference.ID, f.Err)
}

func (f *IngestJobFailure) Unwrap() error {
	return f.Err
}

// jobHandle maps a reference to the address of its remote job.
func jobHandle(ref JobReference) (bulkapi.JobHandle, error) {
	switch r := ref.(type) {
	case IngestJobReference:
		return bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: r.ID}, nil
	case QueryJobReference:
		return bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: r.ID}, nil
	case *IngestJobReference:
		if r != nil {
			return jobHandle(*r)
		}
	case *QueryJobReference:
		if r != nil {
			return jobHandle(*r)
		}
	}
	return bulkapi.JobHandle{}, bulkapi.WrapError(ErrorCodeUnknown, fmt.Errorf("%w: %T", ErrUnknownJobReference, ref))
}
