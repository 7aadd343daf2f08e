package bulkapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	"github.com/forcedotcom/sf-fx-bulk/internal/bulktest"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/forcedotcom/sf-fx-bulk/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("bulk api client", func() {
	var (
		ctx    context.Context
		server *bulktest.Server
		client *bulkapi.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = bulktest.NewServer()
		client = bulkapi.NewClient(server.Connection())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("ingest jobs", func() {
		It("creates, uploads and closes a job", func() {
			info, err := client.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{Object: "Account", Operation: "insert"})
			Expect(err).NotTo(HaveOccurred())
			Expect(info.ID).NotTo(BeEmpty())
			Expect(info.State).To(Equal(bulkapi.StateOpen))
			Expect(info.ContentType).To(Equal("CSV"))
			Expect(info.LineEnding).To(Equal("LF"))
			Expect(info.ColumnDelimiter).To(Equal("COMMA"))

			h := bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: info.ID}
			upload := client.OpenUpload(ctx, h)
			_, err = io.WriteString(upload, "Name,Phone\nACME,555\n")
			Expect(err).NotTo(HaveOccurred())
			Expect(upload.Close()).To(Succeed())
			Expect(upload.Written()).To(BeEquivalentTo(len("Name,Phone\nACME,555\n")))
			Expect(server.Uploaded(info.ID)).To(Equal("Name,Phone\nACME,555\n"))

			closed, err := client.CloseIngestJob(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(closed.State).To(Equal(bulkapi.StateUploadComplete))
		})

		It("returns the server failure when an upload is rejected", func() {
			server.FailUpload(1)
			info, err := client.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{Object: "Account", Operation: "insert"})
			Expect(err).NotTo(HaveOccurred())

			upload := client.OpenUpload(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: info.ID})
			_, _ = io.WriteString(upload, "Name\nACME\n")
			err = upload.Close()
			Expect(bulkapi.Classify(err).ErrorCode).To(Equal("INVALIDBATCH"))
		})

		It("cancels an upload with the producer error", func() {
			info, err := client.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{Object: "Account", Operation: "insert"})
			Expect(err).NotTo(HaveOccurred())

			upload := client.OpenUpload(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: info.ID})
			_, _ = io.WriteString(upload, "Name\n")
			cause := errors.New("encoder broke")
			err = upload.CloseWithError(cause)
			Expect(err).To(HaveOccurred())
			Expect(server.Uploaded(info.ID)).To(BeEmpty())
		})

		It("reads result sets as csv", func() {
			info, err := client.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{Object: "Account", Operation: "insert"})
			Expect(err).NotTo(HaveOccurred())
			h := bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: info.ID}

			upload := client.OpenUpload(ctx, h)
			_, _ = io.WriteString(upload, "Name,Phone\nACME,555\n,666\n")
			Expect(upload.Close()).To(Succeed())
			_, err = client.CloseIngestJob(ctx, h)
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.GetIngestResults(ctx, h, bulkapi.SuccessfulResults)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			t, err := datatable.Decode(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Columns()).To(Equal([]string{"sf__Id", "sf__Created", "Name", "Phone"}))
			Expect(t.Len()).To(Equal(1))

			resp, err = client.GetIngestResults(ctx, h, bulkapi.FailedResults)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			t, err = datatable.Decode(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Columns()[:2]).To(Equal([]string{"sf__Id", "sf__Error"}))
			Expect(t.Row(0)["Phone"]).To(Equal("666"))
		})

		It("advances the job state on each info request", func() {
			info, err := client.CreateIngestJob(ctx, bulkapi.CreateIngestJobRequest{Object: "Account", Operation: "insert"})
			Expect(err).NotTo(HaveOccurred())
			h := bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: info.ID}
			_, err = client.CloseIngestJob(ctx, h)
			Expect(err).NotTo(HaveOccurred())

			var states []string
			for range 3 {
				got, err := client.GetJobInfo(ctx, h)
				Expect(err).NotTo(HaveOccurred())
				states = append(states, got.State)
			}
			Expect(states).To(Equal([]string{bulkapi.StateUploadComplete, bulkapi.StateInProgress, bulkapi.StateJobComplete}))
		})
	})

	Describe("query jobs", func() {
		BeforeEach(func() {
			server.SetQueryData(datatable.NewBuilder("Id", "Name").
				AddRow("1", "a").AddRow("2", "b").AddRow("3", "c").Build())
		})

		It("pages through results with a locator", func() {
			info, err := client.CreateQueryJob(ctx, bulkapi.CreateQueryJobRequest{Operation: "query", Query: "SELECT Id, Name FROM Account"})
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Object).To(Equal("Account"))
			h := bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: info.ID}

			resp, err := client.GetQueryResults(ctx, h, "", 2)
			Expect(err).NotTo(HaveOccurred())
			locator := resp.Header.Get(bulkapi.LocatorHeader)
			Expect(locator).NotTo(BeEmpty())
			Expect(locator).NotTo(Equal("null"))
			Expect(resp.Header.Get(bulkapi.NumberOfRecordsHeader)).To(Equal("2"))
			_ = resp.Body.Close()

			resp, err = client.GetQueryResults(ctx, h, locator, 2)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get(bulkapi.LocatorHeader)).To(Equal("null"))
			Expect(resp.Header.Get(bulkapi.NumberOfRecordsHeader)).To(Equal("1"))
			t, err := datatable.Decode(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Row(0)["Name"]).To(Equal("c"))

			Expect(server.Requests()).To(ContainElement(ContainSubstring("locator=" + locator)))
			Expect(server.Requests()).To(ContainElement(ContainSubstring("maxRecords=2")))
		})

		It("aborts and deletes", func() {
			info, err := client.CreateQueryJob(ctx, bulkapi.CreateQueryJobRequest{Operation: "query", Query: "SELECT Id FROM Account"})
			Expect(err).NotTo(HaveOccurred())
			h := bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: info.ID}

			aborted, err := client.AbortJob(ctx, h)
			Expect(err).NotTo(HaveOccurred())
			Expect(aborted.State).To(Equal(bulkapi.StateAborted))

			Expect(client.DeleteJob(ctx, h)).To(Succeed())
			Expect(server.Exists(info.ID)).To(BeFalse())
		})

		It("rejects abort on a completed job", func() {
			info, err := client.CreateQueryJob(ctx, bulkapi.CreateQueryJobRequest{Operation: "query", Query: "SELECT Id FROM Account"})
			Expect(err).NotTo(HaveOccurred())
			server.CompleteJob(info.ID)

			_, err = client.AbortJob(ctx, bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: info.ID})
			Expect(bulkapi.Classify(err).ErrorCode).To(Equal("INVALIDJOBSTATE"))
		})
	})

	Describe("requests", func() {
		It("sends credentials, api version and a request id", func() {
			var got *http.Request
			var body map[string]string
			stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r
				_ = json.NewDecoder(r.Body).Decode(&body)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"id":"750x","state":"Open","createdDate":"2023-01-31T12:30:59.001+0000"}`)
			}))
			defer stub.Close()

			c := bulkapi.NewClient(bulkapi.Connection{InstanceURL: stub.URL + "/", AccessToken: "tok", APIVersion: "v55.0"})
			info, err := c.CreateIngestJob(requestid.ToContext(ctx, "req-1"),
				bulkapi.CreateIngestJobRequest{Object: "Contact", Operation: "upsert", ExternalIDFieldName: "Ext__c"})
			Expect(err).NotTo(HaveOccurred())

			Expect(got.Method).To(Equal(http.MethodPost))
			Expect(got.URL.Path).To(Equal("/services/data/v55.0/jobs/ingest"))
			Expect(got.Header.Get("Authorization")).To(Equal("Bearer tok"))
			Expect(got.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(got.Header.Get(requestid.Header)).To(Equal("req-1"))
			Expect(body).To(HaveKeyWithValue("externalIdFieldName", "Ext__c"))
			Expect(body).To(HaveKeyWithValue("columnDelimiter", "COMMA"))

			Expect(info.CreatedDate.Equal(time.Date(2023, 1, 31, 12, 30, 59, int(time.Millisecond), time.UTC))).To(BeTrue())
		})

		It("escapes job ids in paths", func() {
			var path string
			stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.EscapedPath()
				_, _ = io.WriteString(w, `{}`)
			}))
			defer stub.Close()

			c := bulkapi.NewClient(bulkapi.Connection{InstanceURL: stub.URL, AccessToken: "tok"})
			_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "a b"})
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.HasSuffix(path, "/jobs/ingest/a%20b")).To(BeTrue())
		})
	})
})
