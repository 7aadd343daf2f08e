package cli

import (
	"context"
	"fmt"

	"github.com/forcedotcom/sf-fx-bulk/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ConfigureOptions struct {
	GlobalOptions

	Connection client.Connection
}

func DefaultConfigureOptions() *ConfigureOptions {
	return &ConfigureOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdConfigure() *cobra.Command {
	o := DefaultConfigureOptions()
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the org connection used by the other commands.",
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

func (o *ConfigureOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Connection.InstanceURL, "instance-url", o.Connection.InstanceURL, "Org instance URL.")
	fs.StringVar(&o.Connection.AccessToken, "access-token", o.Connection.AccessToken, "Session access token.")
	fs.StringVar(&o.Connection.APIVersion, "api-version", o.Connection.APIVersion, "API version, for example 53.0.")
}

func (o *ConfigureOptions) Run(ctx context.Context, args []string) error {
	if err := client.WriteConfig(o.ConfigFilePath, o.Connection); err != nil {
		return err
	}
	fmt.Fprintf(o.out, "connection written to %s\n", o.ConfigFilePath)
	return nil
}
