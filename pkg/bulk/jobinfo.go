package bulk

import (
	"fmt"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
)

type State string

const (
	StateOpen           State = bulkapi.StateOpen
	StateUploadComplete State = bulkapi.StateUploadComplete
	StateInProgress     State = bulkapi.StateInProgress
	StateJobComplete    State = bulkapi.StateJobComplete
	StateFailed         State = bulkapi.StateFailed
	StateAborted        State = bulkapi.StateAborted
)

// Terminal reports whether no further state transitions will happen.
func (s State) Terminal() bool {
	switch s {
	case StateJobComplete, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

type Operation string

const (
	OperationInsert     Operation = "insert"
	OperationUpdate     Operation = "update"
	OperationUpsert     Operation = "upsert"
	OperationDelete     Operation = "delete"
	OperationHardDelete Operation = "hardDelete"
	OperationQuery      Operation = "query"
	OperationQueryAll   Operation = "queryAll"
)

// JobInfo is a point in time snapshot of a remote job. It is implemented by
// *IngestJobInfo and *QueryJobInfo.
type JobInfo interface {
	Reference() JobReference
	JobState() State
	jobInfo()
}

// jobInfoBase holds the fields ingest and query jobs share.
type jobInfoBase struct {
	ID                     string
	Object                 string
	Operation              Operation
	State                  State
	CreatedByID            string
	CreatedDate            time.Time
	SystemModstamp         time.Time
	ConcurrencyMode        string
	ContentType            string
	APIVersion             float64
	LineEnding             string
	ColumnDelimiter        string
	Retries                int64
	ErrorMessage           string
	TotalProcessingTime    int64
	NumberRecordsProcessed int64
}

func (b *jobInfoBase) JobState() State { return b.State }

type IngestJobInfo struct {
	jobInfoBase
	ExternalIDFieldName     string
	NumberRecordsFailed     int64
	APIActiveProcessingTime int64
	ApexProcessingTime      int64
}

func (i *IngestJobInfo) Reference() JobReference { return IngestJobReference{ID: i.ID} }
func (*IngestJobInfo) jobInfo() {}

type QueryJobInfo struct {
	jobInfoBase
	IsPkChunkingSupported bool
}

func (i *QueryJobInfo) Reference() JobReference { return QueryJobReference{ID: i.ID} }
func (*QueryJobInfo) jobInfo() {}

// decodeJobInfo projects the wire payload on the shape selected by ref.
// Legacy job types cannot be represented and are rejected.
func decodeJobInfo(ref JobReference, w *bulkapi.JobInfo) (JobInfo, error) {
	switch w.JobType {
	case bulkapi.JobTypeBigObjectIngest, bulkapi.JobTypeClassic:
		return nil, bulkapi.NewAPIError(ErrorCodeUnsupportedJobType,
			fmt.Sprintf("job %s has unsupported job type %s", w.ID, w.JobType))
	}

	base := jobInfoBase{
		ID:                     w.ID,
		Object:                 w.Object,
		Operation:              Operation(w.Operation),
		State:                  State(w.State),
		CreatedByID:            w.CreatedByID,
		CreatedDate:            w.CreatedDate.Time,
		SystemModstamp:         w.SystemModstamp.Time,
		ConcurrencyMode:        w.ConcurrencyMode,
		ContentType:            w.ContentType,
		APIVersion:             w.APIVersion,
		LineEnding:             w.LineEnding,
		ColumnDelimiter:        w.ColumnDelimiter,
		Retries:                w.Retries,
		ErrorMessage:           w.ErrorMessage,
		TotalProcessingTime:    w.TotalProcessingTime,
		NumberRecordsProcessed: w.NumberRecordsProcessed,
	}

	switch ref.(type) {
	case IngestJobReference, *IngestJobReference:
		return &IngestJobInfo{
			jobInfoBase:             base,
			ExternalIDFieldName:     w.ExternalIDFieldName,
			NumberRecordsFailed:     w.NumberRecordsFailed,
			APIActiveProcessingTime: w.APIActiveProcessingTime,
			ApexProcessingTime:      w.ApexProcessingTime,
		}, nil
	case QueryJobReference, *QueryJobReference:
		return &QueryJobInfo{
			jobInfoBase:           base,
			IsPkChunkingSupported: w.IsPkChunkingSupported,
		}, nil
	default:
		return nil, bulkapi.WrapError(ErrorCodeUnknown, fmt.Errorf("%w: %T", ErrUnknownJobReference, ref))
	}
}
