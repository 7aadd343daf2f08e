package model

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Job is one entry of the local job ledger: a remote job opened by the
// client, or an ingest chunk that failed before its job could be created.
type Job struct {
	gorm.Model
	JobID      string `gorm:"index"`
	Kind       string `gorm:"index"`
	Object     string
	Operation  string
	ChunkIndex int
	Records    int
	State      string
	ErrorCode  string
	Message    string
}

type JobList []Job

func (j Job) String() string {
	v, _ := json.Marshal(j)
	return string(v)
}

// Failed reports whether the entry recorded a failure.
func (j Job) Failed() bool {
	return j.ErrorCode != ""
}
