package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/cmd/borrowbook/devserver"
	"github.com/borrowbook/borrowbook/internal/cli"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "BorrowBook Version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		value, err := utils.ExtractFromComplexValue(BuildInfo)
		if err != nil {
			return err
		}

		slog.InfoContext(cmd.Context(), value)

		return nil
	},
}

func rootCmd(opts *cli.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "borrowbook",
		Short:         "BorrowBook",
		Long:          "BorrowBook command line client and development backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", string(cli.FormatJSON), "output format, json or yaml")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "cookie jar profile, overrides jar.profile")

	cmd.AddCommand(
		versionCmd,
		devserver.Cmd(BuildInfo),
	)
	cmd.AddCommand(cli.Commands(opts)...)

	return cmd
}

func execute() error {
	ctx, cancelOnSignal := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelOnSignal()

	opts := &cli.Options{BuildInfo: BuildInfo}
	if err := rootCmd(opts).ExecuteContext(ctx); err != nil {
		slogctx.Debug(ctx, "Command failed", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return err
	}

	return nil
}

func main() {
	os.Exit(cli.ExitCode(execute()))
}
