package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/internal/bulktest"
	"github.com/forcedotcom/sf-fx-bulk/internal/cli"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

var ingestJobPattern = regexp.MustCompile(`ingest/(\S+)`)

func run(cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var _ = Describe("bulkctl commands", func() {
	var (
		server     *bulktest.Server
		dir        string
		configPath string
		csvPath    string
	)

	// withConfig appends the flags every command shares.
	withConfig := func(args ...string) []string {
		return append(args, "--config", configPath)
	}

	BeforeEach(func() {
		server = bulktest.NewServer()
		dir = GinkgoT().TempDir()
		configPath = filepath.Join(dir, "missing", "config.yaml")

		GinkgoT().Setenv("BULK_INSTANCE_URL", server.URL)
		GinkgoT().Setenv("BULK_ACCESS_TOKEN", bulktest.AccessToken)
		GinkgoT().Setenv("BULK_DB_TYPE", "sqlite")
		GinkgoT().Setenv("BULK_DB_NAME", filepath.Join(dir, "ledger.db"))
		GinkgoT().Setenv("BULK_LOG_LEVEL", "error")
		GinkgoT().Setenv("BULK_RATE_LIMIT", "0")

		csvPath = filepath.Join(dir, "accounts.csv")
		Expect(os.WriteFile(csvPath, []byte("Name,Phone\nAcme,555-0100\n,555-0101\n"), 0600)).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	Context("ingest", func() {
		It("submits the file and records the job", func() {
			out, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("submitted"))

			m := ingestJobPattern.FindStringSubmatch(out)
			Expect(m).To(HaveLen(2))
			Expect(server.Uploaded(m[1])).To(Equal("Name,Phone\nAcme,555-0100\n,555-0101\n"))

			out, err = run(cli.NewCmdJobs(), withConfig("-o", "json")...)
			Expect(err).To(BeNil())

			var jobs []map[string]any
			Expect(json.Unmarshal([]byte(out), &jobs)).To(Succeed())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0]).To(HaveKeyWithValue("JobID", m[1]))
			Expect(jobs[0]).To(HaveKeyWithValue("Kind", "ingest"))
			Expect(jobs[0]).To(HaveKeyWithValue("Object", "Account"))
		})

		It("reports failed chunks and keeps their records", func() {
			server.FailUpload(1)
			unprocessed := filepath.Join(dir, "unprocessed.csv")

			out, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account", "--unprocessed-file", unprocessed)...)
			Expect(err).To(MatchError("1 of 1 chunks failed"))
			Expect(out).To(ContainSubstring("INVALIDBATCH"))

			content, err := os.ReadFile(unprocessed)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("Name,Phone\nAcme,555-0100\n,555-0101\n"))

			out, err = run(cli.NewCmdJobs(), withConfig("--failed")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("INVALIDBATCH"))
		})

		It("publishes events and dumps metrics", func() {
			eventsFile := filepath.Join(dir, "events.jsonl")
			metricsFile := filepath.Join(dir, "bulk.prom")
			GinkgoT().Setenv("BULK_EVENTS_ENABLED", "true")
			GinkgoT().Setenv("BULK_EVENTS_FILE", eventsFile)

			_, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account", "--no-ledger", "--metrics-file", metricsFile)...)
			Expect(err).To(BeNil())

			content, err := os.ReadFile(eventsFile)
			Expect(err).To(BeNil())
			Expect(string(content)).To(ContainSubstring("bulk.ingest.job.created"))

			content, err = os.ReadFile(metricsFile)
			Expect(err).To(BeNil())
			Expect(string(content)).To(ContainSubstring(`bulk_jobs_created_total{kind="ingest"}`))
		})

		It("prints the results as yaml", func() {
			out, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account", "-o", "yaml")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("status: submitted"))
		})

		DescribeTable("rejects invalid flags",
			func(msg string, args []string) {
				_, err := run(cli.NewCmdIngest(), withConfig(append([]string{csvPath}, args...)...)...)
				Expect(err).To(MatchError(ContainSubstring(msg)))
				Expect(server.Requests()).To(BeEmpty())
			},
			Entry("missing object", "--object is required", []string{}),
			Entry("unknown operation", "operation must be one of", []string{"--object", "Account", "--operation", "merge"}),
			Entry("upsert without external id", "--external-id-field is required", []string{"--object", "Account", "--operation", "upsert"}),
			Entry("bad output", "output format must be one of", []string{"--object", "Account", "-o", "xml"}),
		)

		It("fails without a connection", func() {
			GinkgoT().Setenv("BULK_ACCESS_TOKEN", "")

			_, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account", "--no-ledger")...)
			Expect(err).To(MatchError(ContainSubstring("no access token found")))
		})
	})

	Context("ingest job results", func() {
		var jobID string

		BeforeEach(func() {
			out, err := run(cli.NewCmdIngest(), withConfig(csvPath, "--object", "Account")...)
			Expect(err).To(BeNil())
			jobID = ingestJobPattern.FindStringSubmatch(out)[1]
		})

		It("prints successful and failed records", func() {
			out, err := run(cli.NewCmdJobResults(), withConfig("successful", "ingest/"+jobID)...)
			Expect(err).To(BeNil())
			Expect(out).To(HavePrefix("sf__Id,sf__Created,Name,Phone\n"))
			Expect(out).To(ContainSubstring("Acme"))

			out, err = run(cli.NewCmdJobResults(), withConfig("failed", "ingest/"+jobID)...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("REQUIRED_FIELD_MISSING"))
		})

		It("rejects a query job", func() {
			_, err := run(cli.NewCmdJobResults(), withConfig("failed", "query/"+jobID)...)
			Expect(err).To(MatchError(ContainSubstring("is not an ingest job")))
		})

		It("waits for completion and prints the job", func() {
			out, err := run(cli.NewCmdWait(), withConfig("ingest/"+jobID, "--interval", "1ms")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring("JobComplete"))
		})

		It("shows job info as json", func() {
			out, err := run(cli.NewCmdInfo(), withConfig("ingest/"+jobID, "-o", "json")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring(`"Object": "Account"`))
		})

		It("aborts then deletes the job", func() {
			out, err := run(cli.NewCmdAbort(), withConfig("ingest/"+jobID)...)
			Expect(err).To(BeNil())
			Expect(out).To(Equal("ingest/" + jobID + " aborted\n"))

			out, err = run(cli.NewCmdDelete(), withConfig("ingest/"+jobID)...)
			Expect(err).To(BeNil())
			Expect(out).To(Equal("ingest/" + jobID + " deleted\n"))
			Expect(server.Exists(jobID)).To(BeFalse())

			out, err = run(cli.NewCmdJobs(), withConfig("--state", "Deleted")...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring(jobID))
		})
	})

	Context("query", func() {
		BeforeEach(func() {
			server.SetQueryData(datatable.NewBuilder("Id", "Name").
				AddRow("001", "Acme").
				AddRow("002", "Globex").
				AddRow("003", "Initech").
				Build())
		})

		It("starts a job and reads every page", func() {
			out, err := run(cli.NewCmdQuery(), withConfig("SELECT Id, Name FROM Account")...)
			Expect(err).To(BeNil())
			ref := strings.TrimSpace(out)
			Expect(ref).To(HavePrefix("query/"))

			out, err = run(cli.NewCmdResults(), withConfig(ref, "--max-records", "1")...)
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Id,Name\n001,Acme\n002,Globex\n003,Initech\n"))
		})

		It("waits and prints the records", func() {
			out, err := run(cli.NewCmdQuery(), withConfig("SELECT Id, Name FROM Account", "--wait", "--interval", "1ms", "--all")...)
			Expect(err).To(BeNil())
			Expect(out).To(Equal("Id,Name\n001,Acme\n002,Globex\n003,Initech\n"))
		})

		It("surfaces remote errors", func() {
			_, err := run(cli.NewCmdQuery(), withConfig("DELETE FROM Account")...)
			Expect(err).To(MatchError(ContainSubstring("INVALIDJOB")))
		})

		It("rejects ingest references for results", func() {
			_, err := run(cli.NewCmdResults(), withConfig("ingest/750")...)
			Expect(err).To(MatchError(ContainSubstring("is not a query job")))
		})
	})

	Context("configure", func() {
		It("writes a connection used by later commands", func() {
			GinkgoT().Setenv("BULK_INSTANCE_URL", "")
			GinkgoT().Setenv("BULK_ACCESS_TOKEN", "")

			out, err := run(cli.NewCmdConfigure(), withConfig("--instance-url", server.URL, "--access-token", bulktest.AccessToken)...)
			Expect(err).To(BeNil())
			Expect(out).To(ContainSubstring(configPath))

			out, err = run(cli.NewCmdQuery(), withConfig("SELECT Id FROM Account")...)
			Expect(err).To(BeNil())
			Expect(out).To(HavePrefix("query/"))
		})

		It("validates the connection", func() {
			_, err := run(cli.NewCmdConfigure(), withConfig("--instance-url", server.URL)...)
			Expect(err).To(MatchError(ContainSubstring("no access token found")))
		})
	})

	It("rejects malformed job arguments", func() {
		_, err := run(cli.NewCmdInfo(), withConfig("batch/750")...)
		Expect(err).To(MatchError(ContainSubstring(`invalid job kind "batch"`)))

		_, err = run(cli.NewCmdAbort(), withConfig("750")...)
		Expect(err).To(MatchError(ContainSubstring("job must be given as KIND/ID")))
	})

	It("prints the version", func() {
		out, err := run(cli.NewCmdVersion(), "-o", "json")
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring(`"gitVersion"`))
	})
})
