package cli

import (
	"fmt"
	"strings"

	"github.com/forcedotcom/sf-fx-bulk/pkg/version"
	"github.com/spf13/cobra"
)

type VersionOptions struct {
	Output string
}

func DefaultVersionOptions() *VersionOptions {
	return &VersionOptions{
		Output: "",
	}
}

func NewCmdVersion() *cobra.Command {
	o := DefaultVersionOptions()
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print bulkctl version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(o.Output, legalOutputTypes); err != nil {
				return err
			}
			return o.Run(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	return cmd
}

func (o *VersionOptions) Run(cmd *cobra.Command, args []string) error {
	versionInfo := version.Get()
	if o.Output != "" {
		return printObject(cmd.OutOrStdout(), versionInfo, o.Output)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bulkctl Version: %s\n", versionInfo.String())
	return nil
}
