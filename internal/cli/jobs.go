package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/forcedotcom/sf-fx-bulk/internal/store"
	"github.com/forcedotcom/sf-fx-bulk/internal/store/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

type JobsOptions struct {
	GlobalOptions

	Kind   string
	States []string
	Failed bool
	Limit  int
	Output string
}

func DefaultJobsOptions() *JobsOptions {
	return &JobsOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Limit:         50,
	}
}

func NewCmdJobs() *cobra.Command {
	o := DefaultJobsOptions()
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs recorded in the local job ledger, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *JobsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Kind, "kind", o.Kind, fmt.Sprintf("Only list jobs of this kind. One of: (%s).", strings.Join(legalKinds, ", ")))
	fs.StringSliceVar(&o.States, "state", o.States, "Only list jobs in these states.")
	fs.BoolVar(&o.Failed, "failed", o.Failed, "Only list failed jobs and chunks.")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of entries. Zero lists all.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *JobsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.NoLedger {
		return fmt.Errorf("--no-ledger cannot be used with jobs")
	}
	if o.Kind != "" && !funk.ContainsString(legalKinds, o.Kind) {
		return fmt.Errorf("kind must be one of %s", strings.Join(legalKinds, ", "))
	}
	return validateOutput(o.Output, legalOutputTypes)
}

func (o *JobsOptions) Run(ctx context.Context, args []string) error {
	ledger, err := o.openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close()

	filter := store.NewJobQueryFilter()
	if o.Kind != "" {
		filter = filter.ByKind(o.Kind)
	}
	if len(o.States) > 0 {
		filter = filter.ByState(o.States...)
	}
	if o.Failed {
		filter = filter.OnlyFailed()
	}

	jobs, err := ledger.Job().List(ctx, filter, store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime).WithLimit(o.Limit))
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}

	if o.Output != "" {
		return printObject(o.out, jobs, o.Output)
	}
	return printJobsTable(o.out, jobs)
}

func printJobsTable(out io.Writer, jobs model.JobList) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "RECORDED\tJOB\tOBJECT\tOPERATION\tCHUNK\tRECORDS\tSTATE\tERROR")
	for _, j := range jobs {
		job := "-"
		if j.JobID != "" {
			job = j.Kind + "/" + j.JobID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			j.CreatedAt.Format("2006-01-02 15:04:05"), job, j.Object, j.Operation, j.ChunkIndex, j.Records, j.State, j.ErrorCode)
	}
	return w.Flush()
}
