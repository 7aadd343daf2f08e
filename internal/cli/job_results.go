package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
)

const (
	successfulResults  = "successful"
	failedResults      = "failed"
	unprocessedRecords = "unprocessed"
)

var legalResultKinds = []string{successfulResults, failedResults, unprocessedRecords}

type JobResultsOptions struct {
	GlobalOptions
}

func DefaultJobResultsOptions() *JobResultsOptions {
	return &JobResultsOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdJobResults() *cobra.Command {
	o := DefaultJobResultsOptions()
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("job-results (%s) ingest/ID", strings.Join(legalResultKinds, " | ")),
		Short: "Print the per record results of an ingest job as csv.",
		Args:  cobra.ExactArgs(2),
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

func (o *JobResultsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *JobResultsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !funk.ContainsString(legalResultKinds, args[0]) {
		return fmt.Errorf("result kind must be one of %s", strings.Join(legalResultKinds, ", "))
	}
	_, err := ingestReference(args[1])
	return err
}

func (o *JobResultsOptions) Run(ctx context.Context, args []string) error {
	ref, err := ingestReference(args[1])
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		var (
			t   datatable.DataTable
			err error
		)
		switch args[0] {
		case successfulResults:
			t, err = s.api.GetSuccessfulResults(ctx, ref)
		case failedResults:
			t, err = s.api.GetFailedResults(ctx, ref)
		case unprocessedRecords:
			t, err = s.api.GetUnprocessedRecords(ctx, ref)
		}
		if err != nil {
			return fmt.Errorf("reading %s results of %s: %w", args[0], args[1], err)
		}
		return printCSV(o.out, t)
	})
}

func ingestReference(arg string) (bulk.IngestJobReference, error) {
	ref, err := parseJobReference(arg)
	if err != nil {
		return bulk.IngestJobReference{}, err
	}
	i, ok := ref.(bulk.IngestJobReference)
	if !ok {
		return bulk.IngestJobReference{}, fmt.Errorf("%s is not an ingest job", arg)
	}
	return i, nil
}
