package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/pkg/bulk"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type WaitOptions struct {
	GlobalOptions

	Interval time.Duration
	Timeout  time.Duration
	Output   string
}

func DefaultWaitOptions() *WaitOptions {
	return &WaitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Interval:      bulk.DefaultWaitInterval,
	}
}

func NewCmdWait() *cobra.Command {
	o := DefaultWaitOptions()
	cmd := &cobra.Command{
		Use:   "wait KIND/ID",
		Short: "Wait until a job completes, fails or is aborted.",
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

func (o *WaitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.DurationVar(&o.Interval, "interval", o.Interval, "Polling interval.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Give up after this long. Zero waits forever.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *WaitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, err := parseJobReference(args[0]); err != nil {
		return err
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return validateOutput(o.Output, legalOutputTypes)
}

func (o *WaitOptions) Run(ctx context.Context, args []string) error {
	ref, err := parseJobReference(args[0])
	if err != nil {
		return err
	}

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	return o.withSession(ctx, func(s *session) error {
		info, err := bulk.WaitForJob(ctx, s.api, ref, o.Interval)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", args[0], err)
		}

		if o.Output != "" {
			err = printObject(o.out, info, o.Output)
		} else {
			err = printJobInfoTable(o.out, info)
		}
		if err != nil {
			return err
		}

		if state := info.JobState(); state != bulk.StateJobComplete {
			return fmt.Errorf("job %s ended in state %s", args[0], state)
		}
		return nil
	})
}
