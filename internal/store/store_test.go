package store_test

import (
	"context"
	"path/filepath"

	"github.com/forcedotcom/sf-fx-bulk/internal/config"
	st "github.com/forcedotcom/sf-fx-bulk/internal/store"
	"github.com/forcedotcom/sf-fx-bulk/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

// newTestStore opens a fresh sqlite ledger in a temporary directory.
func newTestStore() (st.Store, *gorm.DB) {
	cfg, err := config.NewDefault()
	Expect(err).To(BeNil())
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = filepath.Join(GinkgoT().TempDir(), "ledger.db")

	db, err := st.InitDB(cfg)
	Expect(err).To(BeNil())

	s := st.NewStore(db)
	Expect(s.InitialMigration(context.TODO())).To(Succeed())
	return s, db
}

var _ = Describe("Store", func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeEach(func() {
		store, gormDB = newTestStore()
	})

	AfterEach(func() {
		store.Close()
	})

	Context("transaction", func() {
		It("commits a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			job, err := store.Job().Record(ctx, model.Job{JobID: "7501", Kind: "ingest", State: "Open"})
			Expect(err).To(BeNil())
			Expect(job.ID).ToNot(BeZero())

			_, err = st.Commit(ctx)
			Expect(err).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rolls back a job successfully", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.Job().Record(ctx, model.Job{JobID: "7501", Kind: "ingest", State: "Open"})
			Expect(err).To(BeNil())

			// visible inside the transaction
			jobs, err := store.Job().List(ctx, st.NewJobQueryFilter(), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))

			_, err = st.Rollback(ctx)
			Expect(err).To(BeNil())

			count := 0
			err = gormDB.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("reuses the transaction already in the context", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			nested, err := store.NewTransactionContext(ctx)
			Expect(err).To(BeNil())
			Expect(st.FromContext(nested)).To(BeIdenticalTo(st.FromContext(ctx)))

			_, err = st.Rollback(ctx)
			Expect(err).To(BeNil())
		})

		It("ignores commit without a transaction", func() {
			ctx, err := st.Commit(context.TODO())
			Expect(err).To(BeNil())
			Expect(st.FromContext(ctx)).To(BeNil())
		})
	})
})
