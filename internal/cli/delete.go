package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type DeleteOptions struct {
	GlobalOptions
}

func DefaultDeleteOptions() *DeleteOptions {
	return &DeleteOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdDelete() *cobra.Command {
	o := DefaultDeleteOptions()
	cmd := &cobra.Command{
		Use:   "delete KIND/ID",
		Short: "Delete a completed, failed or aborted job.",
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

func (o *DeleteOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *DeleteOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	_, err := parseJobReference(args[0])
	return err
}

func (o *DeleteOptions) Run(ctx context.Context, args []string) error {
	ref, err := parseJobReference(args[0])
	if err != nil {
		return err
	}

	return o.withSession(ctx, func(s *session) error {
		if err := s.api.Delete(ctx, ref); err != nil {
			return fmt.Errorf("deleting %s: %w", args[0], err)
		}
		fmt.Fprintf(o.out, "%s deleted\n", args[0])
		return nil
	})
}
