package bulk_test

import (
	"context"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulktest"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WaitForJob", func() {
	var (
		ctx    context.Context
		server *bulktest.Server
		client *bulk.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = bulktest.NewServer()
		client = bulk.New(server.Connection())
	})

	AfterEach(func() {
		server.Close()
	})

	It("polls until the job completes", func() {
		results, err := client.Ingest(ctx, bulk.IngestOptions{
			Object:    "Account",
			Operation: bulk.OperationInsert,
			DataTable: accounts(3),
		})
		Expect(err).NotTo(HaveOccurred())
		ref := results[0].(bulk.IngestJobReference)

		info, err := bulk.WaitForJob(ctx, client, ref, 20*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.JobState()).To(Equal(bulk.StateJobComplete))
		Expect(info.(*bulk.IngestJobInfo).NumberRecordsProcessed).To(BeEquivalentTo(3))
	})

	It("returns right away for terminal jobs", func() {
		ref, err := client.Query(ctx, bulk.QueryOptions{SOQL: "SELECT Id FROM Account"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Abort(ctx, ref)).To(Succeed())

		info, err := bulk.WaitForJob(ctx, client, ref, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.JobState()).To(Equal(bulk.StateAborted))
	})

	It("stops when the context is done", func() {
		results, err := client.Ingest(ctx, bulk.IngestOptions{
			Object:    "Account",
			Operation: bulk.OperationInsert,
			DataTable: accounts(1),
		})
		Expect(err).NotTo(HaveOccurred())
		ref := results[0].(bulk.IngestJobReference)

		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		info, err := bulk.WaitForJob(cctx, client, ref, time.Hour)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(info.JobState()).To(Equal(bulk.StateUploadComplete))
	})
})
