package commands

import (
	"context"
	"errors"
	"fmt"
	"imperilment-submitter/internal/components/telemetry"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "imperilment-submit",
	Short: "imperilment-submit publishes generated quiz games to an imperilment instance.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)

		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read .env", "err", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug information, including every HTTP exchange.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
