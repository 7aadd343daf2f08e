package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/forcedotcom/sf-fx-bulk/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := NewBulkCtlCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func NewBulkCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulkctl [flags] [options]",
		Short: "bulkctl loads and queries records through the bulk job service.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdConfigure())
	cmd.AddCommand(cli.NewCmdIngest())
	cmd.AddCommand(cli.NewCmdQuery())
	cmd.AddCommand(cli.NewCmdResults())
	cmd.AddCommand(cli.NewCmdInfo())
	cmd.AddCommand(cli.NewCmdWait())
	cmd.AddCommand(cli.NewCmdAbort())
	cmd.AddCommand(cli.NewCmdDelete())
	cmd.AddCommand(cli.NewCmdJobResults())
	cmd.AddCommand(cli.NewCmdJobs())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
