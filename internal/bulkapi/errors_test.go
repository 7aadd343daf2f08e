package bulkapi_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulkapi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("error classification", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	respondWith := func(status int, body string) *bulkapi.Client {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = fmt.Fprint(w, body)
		}))
		DeferCleanup(server.Close)
		return bulkapi.NewClient(bulkapi.Connection{InstanceURL: server.URL, AccessToken: "token"})
	}

	It("reports an expired session", func() {
		c := respondWith(http.StatusUnauthorized, `[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`)

		_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "750x"})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, bulkapi.ErrSessionExpired)).To(BeTrue())

		apiErr := bulkapi.Classify(err)
		Expect(apiErr.ErrorCode).To(Equal(bulkapi.ErrorCodeInvalidSession))
		Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("does not treat other unauthorized responses as session expiry", func() {
		c := respondWith(http.StatusUnauthorized, `[{"errorCode":"INSUFFICIENT_ACCESS","message":"no"}]`)

		_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "750x"})
		Expect(errors.Is(err, bulkapi.ErrSessionExpired)).To(BeFalse())
		Expect(bulkapi.Classify(err).ErrorCode).To(Equal("INSUFFICIENT_ACCESS"))
	})

	It("raises the first entry of an error array", func() {
		c := respondWith(http.StatusBadRequest,
			`[{"errorCode":"INVALIDJOBSTATE","message":"first"},{"errorCode":"OTHER","message":"second"}]`)

		err := c.DeleteJob(ctx, bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: "750x"})

		var apiErr *bulkapi.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.ErrorCode).To(Equal("INVALIDJOBSTATE"))
		Expect(apiErr.Message).To(Equal("first"))
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("accepts a single error object", func() {
		c := respondWith(http.StatusNotFound, `{"errorCode":"NOT_FOUND","message":"missing"}`)

		_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.QueryJob, ID: "750x"})
		Expect(bulkapi.Classify(err).ErrorCode).To(Equal("NOT_FOUND"))
	})

	It("maps unstructured server errors to the status", func() {
		c := respondWith(http.StatusServiceUnavailable, "")

		_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "750x"})
		apiErr := bulkapi.Classify(err)
		Expect(apiErr.ErrorCode).To(Equal("ERROR_HTTP_503"))
		Expect(apiErr.Message).To(BeEmpty())
	})

	It("wraps transport faults as unknown", func() {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		c := bulkapi.NewClient(bulkapi.Connection{InstanceURL: url, AccessToken: "token"})
		_, err := c.GetJobInfo(ctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "750x"})
		Expect(bulkapi.Classify(err).ErrorCode).To(Equal(bulkapi.ErrorCodeUnknown))
	})

	It("keeps context cancellation visible", func() {
		c := respondWith(http.StatusOK, "{}")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.GetJobInfo(cctx, bulkapi.JobHandle{Kind: bulkapi.IngestJob, ID: "750x"})
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		Expect(bulkapi.Classify(err).ErrorCode).To(Equal(bulkapi.ErrorCodeUnknown))
	})

	Describe("Classify", func() {
		It("returns nil for nil", func() {
			Expect(bulkapi.Classify(nil)).To(BeNil())
		})

		It("unwraps an APIError wrapped with context", func() {
			orig := bulkapi.NewAPIError("INVALIDJOB", "bad")
			wrapped := fmt.Errorf("creating job: %w", orig)
			Expect(bulkapi.Classify(wrapped)).To(BeIdenticalTo(orig))
		})

		It("formats code and message", func() {
			Expect(bulkapi.NewAPIError("INVALIDJOB", "bad").Error()).To(Equal("INVALIDJOB: bad"))
			Expect(bulkapi.NewAPIError("ERROR_HTTP_500", "").Error()).To(Equal("ERROR_HTTP_500"))
		})
	})
})
