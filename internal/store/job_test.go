package store_test

import (
	"context"
	"fmt"

	st "github.com/forcedotcom/sf-fx-bulk/internal/store"
	"github.com/forcedotcom/sf-fx-bulk/internal/store/model"
	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const insertJobStm = "INSERT INTO jobs (job_id, kind, object, state, error_code, created_at, updated_at) VALUES ('%s', '%s', 'Account', '%s', '%s', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);"

var _ = Describe("job store", func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeEach(func() {
		s, gormdb = newTestStore()
	})

	AfterEach(func() {
		s.Close()
	})

	Context("list", func() {
		BeforeEach(func() {
			for _, stm := range []string{
				fmt.Sprintf(insertJobStm, "7501", "ingest", "JobComplete", ""),
				fmt.Sprintf(insertJobStm, "7502", "ingest", "Failed", "INVALIDBATCH"),
				fmt.Sprintf(insertJobStm, "7503", "query", "UploadComplete", ""),
			} {
				Expect(gormdb.Exec(stm).Error).To(BeNil())
			}
		})

		It("lists all the jobs", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
		})

		It("filters by kind", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().ByKind("query"), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].JobID).To(Equal("7503"))
		})

		It("filters by state", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().ByState("JobComplete", "Failed"), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("keeps only failures", func() {
			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().OnlyFailed(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Failed()).To(BeTrue())
		})

		It("sorts and limits", func() {
			jobs, err := s.Job().List(context.TODO(), nil, st.NewJobQueryOptions().WithSortOrder(st.SortByID).WithLimit(2))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].JobID).To(Equal("7501"))
			Expect(jobs[1].JobID).To(Equal("7502"))
		})
	})

	Context("record", func() {
		It("updates the entry of a known job", func() {
			_, err := s.Job().Record(context.TODO(), model.Job{JobID: "7501", Kind: "ingest", Object: "Account", Records: 10, State: "Open"})
			Expect(err).To(BeNil())

			job, err := s.Job().Record(context.TODO(), model.Job{JobID: "7501", State: "Aborted"})
			Expect(err).To(BeNil())
			Expect(job.State).To(Equal("Aborted"))
			Expect(job.Object).To(Equal("Account"))
			Expect(job.Records).To(Equal(10))

			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().ByJobID("7501"), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
		})

		It("appends entries without a job id", func() {
			for i := 0; i < 2; i++ {
				_, err := s.Job().Record(context.TODO(), model.Job{Kind: "ingest", ChunkIndex: i, ErrorCode: "INVALID_SESSION_ID"})
				Expect(err).To(BeNil())
			}

			jobs, err := s.Job().List(context.TODO(), st.NewJobQueryFilter().OnlyFailed(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("returns not found for an unknown job", func() {
			_, err := s.Job().Get(context.TODO(), "missing")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("recorder", func() {
		It("stores bulk job records", func() {
			r := st.NewRecorder(s)
			err := r.RecordJob(context.TODO(), bulk.JobRecord{
				JobID:     "7509",
				Kind:      "query",
				Object:    "Account",
				Operation: "query",
				State:     "UploadComplete",
			})
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), "7509")
			Expect(err).To(BeNil())
			Expect(job.Kind).To(Equal("query"))
			Expect(job.Operation).To(Equal("query"))
		})
	})
})
