package commands

import (
	"context"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/components/serviceutil"
	"imperilment-submitter/internal/components/telemetry"
	"imperilment-submitter/internal/deck"
	"imperilment-submitter/internal/scrapers/imperilment"
	"imperilment-submitter/internal/submission"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	flags      Config
)

func init() {
	f := submitCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "config.json5", "The config file, a .local variant is merged over it.")
	f.StringVar(&flags.Host, "host", "", "The imperilment instance, http:// is assumed without a scheme.")
	f.StringVarP(&flags.Username, "username", "u", "", "The admin account's email.")
	f.StringVarP(&flags.Password, "password", "p", "", "The admin account's password.")
	f.IntVarP(&flags.Games, "games", "n", 0, "The amount of games to publish (default 1).")
	f.StringVar(&flags.StartDate, "start-date", "", "Schedule from this date instead of the latest game's end (YYYY-MM-DD).")
	f.StringVar(&flags.Deck, "deck", "", "The deck file games are drawn from.")
	f.Int64Var(&flags.Seed, "seed", 0, "The seed used to shuffle the deck.")
	f.StringVar(&flags.DumpDir, "dump-dir", "", "Write every HTTP exchange under this directory.")
	rootCmd.AddCommand(submitCmd)
}

var submitCmd = &cobra.Command{
	Use:   "submit [--config <path/to/config.json5>] [--games <n>] [--start-date <YYYY-MM-DD>]",
	Short: "Generates games from a deck and creates them on the instance.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"), flags)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}

		ctx := cmd.Context()
		otel, err := telemetry.Setup(ctx, "imperilment-submit", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}

		result, err := submit(ctx, cfg, telemetry.SlogAPI{}, chrono.NewStandardImpl())
		renderSummary(os.Stdout, result)
		// os.Exit skips deferred calls
		flushTelemetry(otel)
		if err != nil {
			slog.Error("submission stopped", "err", err.Error())
			os.Exit(1)
		}
	},
}

func flushTelemetry(otel telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}

func submit(ctx context.Context, cfg Config, tel telemetry.API, clock chrono.API) (submission.Result, error) {
	runId := uuid.NewString()
	slog.Info("starting run", "run", runId, "host", cfg.Host, "games", cfg.Games)

	startDate, err := cfg.startDate()
	if err != nil {
		return submission.Result{}, err
	}
	contents, err := deck.Load(cfg.Deck)
	if err != nil {
		return submission.Result{}, err
	}

	var output telemetry.MessageOutput
	if cfg.DumpDir != "" {
		dir := filepath.Join(cfg.DumpDir, runId)
		fsOutput, err := telemetry.NewFilesystemOutput(dir)
		if err != nil {
			return submission.Result{}, err
		}
		slog.Info("dumping http exchanges", "dir", dir)
		output = fsOutput
	}

	client, err := imperilment.NewClient(cfg.clientOptions(output), tel)
	if err != nil {
		return submission.Result{}, err
	}

	seed := cfg.seed(clock)
	slog.Debug("shuffling deck", "seed", seed, "categories", len(contents.Categories))

	workflow := submission.NewWorkflow(
		client,
		deck.NewProducer(contents, cfg.CategoriesPerGame, seed, tel),
		submission.Options{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Games:     cfg.Games,
			StartDate: startDate,
		},
		tel,
	)
	return workflow.Run(ctx)
}
