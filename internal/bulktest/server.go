// Package bulktest runs an in-process fake of the remote bulk job service.
package bulktest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/forcedotcom/sf-fx-bulk/pkg/log"
	"github.com/forcedotcom/sf-fx-bulk/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	AccessToken = "00Dfake!session"
	APIVersion  = "53.0"
)

type job struct {
	info     bulkapi.JobInfo
	kind     bulkapi.JobKind
	ordinal  int
	uploaded []byte
	query    datatable.DataTable
	results  map[bulkapi.IngestResultKind]string
}

// Server tracks jobs in memory. Ingest jobs move from UploadComplete to
// JobComplete one state per info request; query jobs serve their results
// right away.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	jobs           map[string]*job
	ingestCount    int
	sessionExpired bool
	uploadFailures map[int]struct{}
	queryData      datatable.DataTable
	omitLocator    bool
	jobTypes       map[string]string
	requests       []string
}

func NewServer() *Server {
	s := &Server{
		jobs:           map[string]*job{},
		uploadFailures: map[int]struct{}{},
		jobTypes:       map[string]string{},
		queryData:      datatable.Empty(),
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) Connection() bulkapi.Connection {
	return bulkapi.Connection{InstanceURL: s.URL, AccessToken: AccessToken, APIVersion: APIVersion}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/services/data/v{version}/jobs", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(log.Logger(zap.L(), "bulktest"))
		r.Use(s.authenticate)
		r.Use(s.record)

		r.Post("/ingest", s.createIngestJob)
		r.Put("/ingest/{id}/batches", s.upload)
		r.Get("/ingest/{id}/{kind}", s.ingestResults)

		r.Post("/query", s.createQueryJob)
		r.Get("/query/{id}/results", s.queryResults)

		for _, kind := range []string{"ingest", "query"} {
			r.Get("/"+kind+"/{id}", s.jobInfo)
			r.Patch("/"+kind+"/{id}", s.updateState)
			r.Delete("/"+kind+"/{id}", s.deleteJob)
		}
	})
	return r
}

// ExpireSession makes every following request fail the way an expired
// access token does.
func (s *Server) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionExpired = true
}

// FailUpload rejects the data upload of the n-th ingest job created, counting from 1.
func (s *Server) FailUpload(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFailures[n] = struct{}{}
}

// SetQueryData sets the records served by query jobs created afterwards.
func (s *Server) SetQueryData(t datatable.DataTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryData = t
}

// OmitLocator drops the locator header from the last page instead of sending "null".
func (s *Server) OmitLocator() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitLocator = true
}

// CompleteJob moves a job straight to JobComplete.
func (s *Server) CompleteJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.info.State = bulkapi.StateJobComplete
	}
}

// SetJobType overrides the job type reported for a job.
func (s *Server) SetJobType(id, jobType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobTypes[id] = jobType
}

// SetIngestResults replaces one of the CSV result sets of an ingest job.
func (s *Server) SetIngestResults(id string, kind bulkapi.IngestResultKind, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.results[kind] = body
	}
}

// Uploaded returns the raw CSV received for an ingest job.
func (s *Server) Uploaded(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return string(j.uploaded)
	}
	return ""
}

func (s *Server) State(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return j.info.State
	}
	return ""
}

func (s *Server) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Requests lists "METHOD path?query" for every authenticated request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		expired := s.sessionExpired
		s.mu.Unlock()

		if expired || r.Header.Get("Authorization") != "Bearer "+AccessToken {
			writeErrors(w, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		s.mu.Lock()
		s.requests = append(s.requests, entry)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) newJob(kind bulkapi.JobKind, object, operation string) *job {
	now := time.Now().UTC()
	j := &job{
		kind: kind,
		info: bulkapi.JobInfo{
			ID:              "750" + strings.ReplaceAll(uuid.NewString(), "-", "")[:15],
			Operation:       operation,
			Object:          object,
			CreatedByID:     "005000000000001",
			CreatedDate:     bulkapi.Timestamp{Time: now},
			SystemModstamp:  bulkapi.Timestamp{Time: now},
			ConcurrencyMode: "Parallel",
			ContentType:     "CSV",
			LineEnding:      "LF",
			ColumnDelimiter: "COMMA",
		},
		results: map[bulkapi.IngestResultKind]string{},
	}
	if v, err := strconv.ParseFloat(APIVersion, 64); err == nil {
		j.info.APIVersion = v
	}
	s.jobs[j.info.ID] = j
	return j
}

func (s *Server) createIngestJob(w http.ResponseWriter, r *http.Request) {
	var req bulkapi.CreateIngestJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if req.Object == "" || req.Operation == "" {
		writeErrors(w, http.StatusBadRequest, "INVALIDJOB", "object and operation are required")
		return
	}

	s.mu.Lock()
	s.ingestCount++
	j := s.newJob(bulkapi.IngestJob, req.Object, req.Operation)
	j.ordinal = s.ingestCount
	j.info.State = bulkapi.StateOpen
	j.info.JobType = bulkapi.JobTypeV2Ingest
	j.info.ExternalIDFieldName = req.ExternalIDFieldName
	info := j.info
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "INVALIDBATCH", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, bulkapi.IngestJob)
	if !ok {
		return
	}
	if _, fail := s.uploadFailures[j.ordinal]; fail {
		writeErrors(w, http.StatusBadRequest, "INVALIDBATCH", "Failed to parse the uploaded data")
		return
	}
	if j.info.State != bulkapi.StateOpen {
		writeErrors(w, http.StatusConflict, "INVALIDJOBSTATE", "Job is not open for uploads")
		return
	}
	j.uploaded = append(j.uploaded, body...)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, kindFromPath(r))
	if !ok {
		return
	}

	switch req.State {
	case bulkapi.StateUploadComplete:
		if j.info.State != bulkapi.StateOpen {
			writeErrors(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Job is not open")
			return
		}
		j.info.State = bulkapi.StateUploadComplete
		j.finishIngest()
	case bulkapi.StateAborted:
		if isTerminal(j.info.State) {
			writeErrors(w, http.StatusBadRequest, "INVALIDJOBSTATE",
				fmt.Sprintf("Aborting already %s Job not allowed", j.info.State))
			return
		}
		j.info.State = bulkapi.StateAborted
	default:
		writeErrors(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Unsupported state "+req.State)
		return
	}
	j.info.SystemModstamp = bulkapi.Timestamp{Time: time.Now().UTC()}
	writeJSON(w, http.StatusOK, s.view(j))
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, kindFromPath(r))
	if !ok {
		return
	}
	if j.info.State == bulkapi.StateJobComplete {
		writeErrors(w, http.StatusBadRequest, "INVALIDJOBSTATE", "Deleting already Completed Job not allowed")
		return
	}
	delete(s.jobs, j.info.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) jobInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, kindFromPath(r))
	if !ok {
		return
	}
	view := s.view(j)
	switch j.info.State {
	case bulkapi.StateUploadComplete:
		j.info.State = bulkapi.StateInProgress
	case bulkapi.StateInProgress:
		j.info.State = bulkapi.StateJobComplete
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) ingestResults(w http.ResponseWriter, r *http.Request) {
	kind := bulkapi.IngestResultKind(chi.URLParam(r, "kind"))
	switch kind {
	case bulkapi.SuccessfulResults, bulkapi.FailedResults, bulkapi.UnprocessedRecords:
	default:
		writeErrors(w, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, bulkapi.IngestJob)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", bulkapi.ContentTypeCSV)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, j.results[kind])
}

func (s *Server) createQueryJob(w http.ResponseWriter, r *http.Request) {
	var req bulkapi.CreateQueryJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	fields := strings.Fields(req.Query)
	if len(fields) == 0 {
		writeErrors(w, http.StatusBadRequest, "INVALIDJOB", "query is required")
		return
	}
	if !strings.EqualFold(fields[0], "SELECT") {
		writeErrors(w, http.StatusBadRequest, "INVALIDJOB", "unexpected token: "+fields[0])
		return
	}

	s.mu.Lock()
	j := s.newJob(bulkapi.QueryJob, objectFromQuery(req.Query), req.Operation)
	j.info.State = bulkapi.StateUploadComplete
	j.info.JobType = bulkapi.JobTypeV2Query
	j.query = s.queryData
	info := j.info
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) queryResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.lookup(w, r, bulkapi.QueryJob)
	if !ok {
		return
	}

	offset := 0
	if l := r.URL.Query().Get("locator"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 || n > j.query.Len() {
			writeErrors(w, http.StatusBadRequest, "INVALID_LOCATOR", "Invalid locator "+l)
			return
		}
		offset = n
	}
	end := j.query.Len()
	if m := r.URL.Query().Get("maxRecords"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			writeErrors(w, http.StatusBadRequest, "INVALID_MAX_RECORDS", "Invalid maxRecords "+m)
			return
		}
		if offset+n < end {
			end = offset + n
		}
	}

	page := datatable.NewBuilder(j.query.Columns()...)
	for i := offset; i < end; i++ {
		page.AddRowMap(j.query.Row(i))
	}
	var body bytes.Buffer
	if err := datatable.Encode(&body, page.Build()); err != nil {
		writeErrors(w, http.StatusInternalServerError, "UNKNOWN_EXCEPTION", err.Error())
		return
	}

	w.Header().Set("Content-Type", bulkapi.ContentTypeCSV)
	w.Header().Set(bulkapi.NumberOfRecordsHeader, strconv.Itoa(end-offset))
	switch {
	case end < j.query.Len():
		w.Header().Set(bulkapi.LocatorHeader, strconv.Itoa(end))
	case !s.omitLocator:
		w.Header().Set(bulkapi.LocatorHeader, "null")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

// lookup must be called with s.mu held.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, kind bulkapi.JobKind) (*job, bool) {
	j, ok := s.jobs[chi.URLParam(r, "id")]
	if !ok || j.kind != kind {
		writeErrors(w, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return nil, false
	}
	return j, true
}

// view must be called with s.mu held.
func (s *Server) view(j *job) bulkapi.JobInfo {
	info := j.info
	if t, ok := s.jobTypes[info.ID]; ok {
		info.JobType = t
	}
	return info
}

// finishIngest derives the result sets from the uploaded CSV: every row with
// a non empty first column succeeds, the rest fail.
func (j *job) finishIngest() {
	records, err := csv.NewReader(bytes.NewReader(j.uploaded)).ReadAll()
	if err != nil || len(records) == 0 {
		return
	}
	header := records[0]

	var ok, failed bytes.Buffer
	okw, failw := csv.NewWriter(&ok), csv.NewWriter(&failed)
	_ = okw.Write(append([]string{"sf__Id", "sf__Created"}, header...))
	_ = failw.Write(append([]string{"sf__Id", "sf__Error"}, header...))

	for i, rec := range records[1:] {
		if len(rec) > 0 && rec[0] != "" {
			_ = okw.Write(append([]string{fmt.Sprintf("001%015d", i+1), "true"}, rec...))
			j.info.NumberRecordsProcessed++
			continue
		}
		_ = failw.Write(append([]string{"", "REQUIRED_FIELD_MISSING:Required fields are missing: [" + header[0] + "]:" + header[0] + " --"}, rec...))
		j.info.NumberRecordsProcessed++
		j.info.NumberRecordsFailed++
	}
	okw.Flush()
	failw.Flush()

	j.results[bulkapi.SuccessfulResults] = ok.String()
	j.results[bulkapi.FailedResults] = failed.String()
	j.results[bulkapi.UnprocessedRecords] = strings.Join(header, ",") + "\n"
}

func kindFromPath(r *http.Request) bulkapi.JobKind {
	if strings.Contains(r.URL.Path, "/jobs/query/") {
		return bulkapi.QueryJob
	}
	return bulkapi.IngestJob
}

func isTerminal(state string) bool {
	return state == bulkapi.StateJobComplete || state == bulkapi.StateFailed || state == bulkapi.StateAborted
}

func objectFromQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		if strings.EqualFold(f, "FROM") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", bulkapi.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, []map[string]string{{"errorCode": code, "message": message}})
}
