package events

// JobEvent is the payload of every job lifecycle event.
type JobEvent struct {
	JobID      string `json:"job_id,omitempty"`
	JobKind    string `json:"job_kind"`
	Object     string `json:"object,omitempty"`
	Operation  string `json:"operation,omitempty"`
	ChunkIndex *int   `json:"chunk_index,omitempty"`
	Records    int    `json:"records,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Message    string `json:"message,omitempty"`
}
