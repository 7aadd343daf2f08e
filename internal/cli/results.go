package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/forcedotcom/sf-fx-bulk/pkg/datatable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type ResultsOptions struct {
	GlobalOptions

	MaxRecords int
}

func DefaultResultsOptions() *ResultsOptions {
	return &ResultsOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdResults() *cobra.Command {
	o := DefaultResultsOptions()
	cmd := &cobra.Command{
		Use:   "results query/ID",
		Short: "Print every record of a completed query job as csv.",
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

func (o *ResultsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVar(&o.MaxRecords, "max-records", o.MaxRecords, "Records per page.")
}

func (o *ResultsOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := queryReference(args[0]); err != nil {
		return err
	}
	if o.MaxRecords < 0 {
		return fmt.Errorf("max-records must not be negative")
	}
	return nil
}

func (o *ResultsOptions) Run(ctx context.Context, args []string) error {
	ref, err := queryReference(args[0])
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		return streamQueryResults(ctx, s.api, ref, o.MaxRecords, o.out)
	})
}

func queryReference(arg string) (bulk.QueryJobReference, error) {
	ref, err := parseJobReference(arg)
	if err != nil {
		return bulk.QueryJobReference{}, err
	}
	q, ok := ref.(bulk.QueryJobReference)
	if !ok {
		return bulk.QueryJobReference{}, fmt.Errorf("%s is not a query job", arg)
	}
	return q, nil
}

// streamQueryResults follows the locators of ref until the last page and
// writes the records to out as a single csv document.
func streamQueryResults(ctx context.Context, api bulk.API, ref bulk.QueryJobReference, maxRecords int, out io.Writer) error {
	var opts []bulk.ResultsOption
	if maxRecords > 0 {
		opts = append(opts, bulk.WithMaxRecords(maxRecords))
	}

	page, err := api.GetQueryResults(ctx, ref, opts...)
	if err != nil {
		return fmt.Errorf("reading results of %s: %w", ref, err)
	}

	enc := datatable.NewEncoder(out, page.DataTable.Columns())
	if len(page.DataTable.Columns()) > 0 {
		if err := enc.WriteHeader(); err != nil {
			return err
		}
	}

	pages := 1
	for {
		for _, r := range page.DataTable.Rows() {
			if err := enc.WriteRow(r); err != nil {
				return err
			}
		}
		if err := enc.Flush(); err != nil {
			return err
		}
		if page.Done {
			break
		}

		page, err = api.GetMoreQueryResults(ctx, page, opts...)
		if err != nil {
			return fmt.Errorf("reading results of %s: %w", ref, err)
		}
		pages++
	}

	zap.S().Named("cli").Debugw("query results read", "job", ref.String(), "pages", pages)
	return nil
}
