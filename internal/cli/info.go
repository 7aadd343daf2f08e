package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type InfoOptions struct {
	GlobalOptions

	Output string
}

func DefaultInfoOptions() *InfoOptions {
	return &InfoOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdInfo() *cobra.Command {
	o := DefaultInfoOptions()
	cmd := &cobra.Command{
		Use:   "info KIND/ID",
		Short: "Display the state of an ingest or query job.",
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

func (o *InfoOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *InfoOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := parseJobReference(args[0]); err != nil {
		return err
	}
	return validateOutput(o.Output, legalOutputTypes)
}

func (o *InfoOptions) Run(ctx context.Context, args []string) error {
	ref, err := parseJobReference(args[0])
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		info, err := s.api.GetInfo(ctx, ref)
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		if o.Output != "" {
			return printObject(o.out, info, o.Output)
		}
		return printJobInfoTable(o.out, info)
	})
}

func printJobInfoTable(out io.Writer, infos ...bulk.JobInfo) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "JOB\tOBJECT\tOPERATION\tSTATE\tPROCESSED\tFAILED\tERROR")
	for _, info := range infos {
		switch i := info.(type) {
		case *bulk.IngestJobInfo:
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", i.Reference(), i.Object, i.Operation, i.State, i.NumberRecordsProcessed, i.NumberRecordsFailed, i.ErrorMessage)
		case *bulk.QueryJobInfo:
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t-\t%s\n", i.Reference(), i.Object, i.Operation, i.State, i.NumberRecordsProcessed, i.ErrorMessage)
		}
	}
	return w.Flush()
}
