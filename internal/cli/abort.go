package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type AbortOptions struct {
	GlobalOptions
}

func DefaultAbortOptions() *AbortOptions {
	return &AbortOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdAbort() *cobra.Command {
	o := DefaultAbortOptions()
	cmd := &cobra.Command{
		Use:   "abort KIND/ID",
		Short: "Abort an ingest or query job.",
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

func (o *AbortOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *AbortOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	_, err := parseJobReference(args[0])
	return err
}

func (o *AbortOptions) Run(ctx context.Context, args []string) error {
	ref, err := parseJobReference(args[0])
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		if err := s.api.Abort(ctx, ref); err != nil {
			return fmt.Errorf("aborting %s: %w", args[0], err)
		}
		fmt.Fprintf(o.out, "%s aborted\n", args[0])
		return nil
	})
}
