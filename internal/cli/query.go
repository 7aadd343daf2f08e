package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type QueryOptions struct {
	GlobalOptions

	All        bool
	Wait       bool
	Interval   time.Duration
	MaxRecords int
}

func DefaultQueryOptions() *QueryOptions {
	return &QueryOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      bulk.DefaultWaitInterval,
	}
}

func NewCmdQuery() *cobra.Command {
	o := DefaultQueryOptions()
	cmd := &cobra.Command{
		Use:   "query SOQL",
		Short: "Start a query job. With --wait, print its records as csv once done.",
		Args:  cobra.ExactArgs(1),
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

func (o *QueryOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.All, "all", o.All, "Include deleted and archived records (queryAll).")
	fs.BoolVar(&o.Wait, "wait", o.Wait, "Wait for the job and print its records.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Polling interval used with --wait.")
	fs.IntVar(&o.MaxRecords, "max-records", o.MaxRecords, "Records per page when printing results.")
}

func (o *QueryOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.MaxRecords < 0 {
		return fmt.Errorf("max-records must not be negative")
	}
	return nil
}

func (o *QueryOptions) Run(ctx context.Context, args []string) error {
	op := bulk.OperationQuery
	if o.All {
		op = bulk.OperationQueryAll
	}

	return o.withSession(ctx, func(s *session) error {
		ref, err := s.api.Query(ctx, bulk.QueryOptions{SOQL: args[0], Operation: op})
		if err != nil {
			return fmt.Errorf("creating query job: %w", err)
		}
		if !o.Wait {
			fmt.Fprintln(o.out, ref)
			return nil
		}

		info, err := bulk.WaitForJob(ctx, s.api, ref, o.Interval)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", ref, err)
		}
		if state := info.JobState(); state != bulk.StateJobComplete {
			return fmt.Errorf("job %s ended in state %s", ref, state)
		}
		return streamQueryResults(ctx, s.api, ref, o.MaxRecords, o.out)
	})
}
