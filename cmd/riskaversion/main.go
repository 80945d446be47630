// Package main is the batch entry point of the risk-aversion pipeline.
//
// Subcommands:
//   - measure: raw price files -> stocks.csv, returns.csv, covariance.csv, weight.csv
//   - solve:   measure artifacts -> risk_aversion.csv (and a stored run)
//   - check:   OLS / Lasso regression of weights on the measure artifacts
//   - run:     measure followed by solve
//   - history: list the most recent stored runs, or replay one with -id
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aristath/riskaversion/internal/config"
	"github.com/aristath/riskaversion/internal/database"
	"github.com/aristath/riskaversion/internal/modules/artifacts"
	"github.com/aristath/riskaversion/internal/modules/riskaversion"
	"github.com/aristath/riskaversion/internal/modules/runs"
	"github.com/aristath/riskaversion/internal/pipeline"
	"github.com/aristath/riskaversion/pkg/logger"
	"github.com/rs/zerolog"
)

const usage = `usage: riskaversion <command> [flags]

commands:
  measure   build the price panel and write the measure artifacts
  solve     recover q from the measure artifacts
  check     score OLS and Lasso weight regressions
  run       measure and solve
  history   list stored runs (-id <run> replays one)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, command, args, cfg, os.Stdout, log); err != nil {
		stop()
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

func execute(ctx context.Context, command string, args []string, cfg *config.Config, out io.Writer, log zerolog.Logger) error {
	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.StringVar(&cfg.RawDir, "raw", cfg.RawDir, "directory of raw price files")
	flags.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "artifact directory")
	flags.StringVar(&cfg.SolverMethod, "method", cfg.SolverMethod, "solver method: closed_form, golden_section, nelder_mead")
	flags.StringVar(&cfg.MissingDatePolicy, "missing-dates", cfg.MissingDatePolicy, "missing date policy: intersect, pairwise")
	flags.BoolVar(&cfg.NormalizeWeights, "normalize", cfg.NormalizeWeights, "rescale weights to sum to one")
	noHistory := flags.Bool("no-history", false, "do not record the run")
	limit := flags.Int("limit", 20, "number of runs listed by history")
	runID := flags.String("id", "", "run replayed by history")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store := artifacts.NewStore(cfg.OutputDir, log)

	var runStore pipeline.RunStore
	if !*noHistory || command == "history" {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath,
			Profile: database.ProfileLedger,
			Name:    "runs",
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate run history: %w", err)
		}
		if command == "history" {
			if err := db.HealthCheck(ctx); err != nil {
				return err
			}
		}
		runStore = runs.NewRepository(db.Conn(), log)
	}

	var publisher pipeline.Publisher
	if cfg.Publish.Enabled() && (command == "solve" || command == "run") {
		s3, err := artifacts.NewS3Publisher(ctx, cfg.Publish.ToPublisherConfig(), log)
		if err != nil {
			return fmt.Errorf("failed to create artifact publisher: %w", err)
		}
		publisher = s3
	}

	p := pipeline.New(pipeline.Config{
		RawDir:      cfg.RawDir,
		LoadWorkers: cfg.LoadWorkers,
		Measures:    cfg.ToMeasureOptions(),
		Solver:      cfg.ToSolverConfig(),
	}, store, runStore, publisher, log)

	switch command {
	case "measure":
		m, files, err := p.Measure(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "assets\t%d\nweight sum\t%g\n", m.Returns.Len(), m.Weights.RawSum)
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil

	case "solve", "run":
		solve := p.Solve
		if command == "run" {
			solve = p.Run
		}
		outcome, err := solve(ctx)
		if err != nil {
			return err
		}
		printOutcome(out, outcome)
		return nil

	case "check":
		scores, err := p.Check(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tR2")
		for _, s := range scores {
			fmt.Fprintf(tw, "%s\t%.6f\n", s.Model, s.RSquared)
		}
		return tw.Flush()

	case "history":
		if *runID != "" {
			run, replayed, err := p.Replay(ctx, *runID)
			if err != nil {
				return err
			}
			printReplay(out, run, replayed)
			return nil
		}
		list, err := p.History(ctx, *limit)
		if err != nil {
			return err
		}
		printHistory(out, list)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printOutcome(out io.Writer, o pipeline.Outcome) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", o.RunID)
	fmt.Fprintf(tw, "q\t%g\n", o.Result.Q)
	fmt.Fprintf(tw, "unconstrained\t%g\n", o.Result.Unconstrained)
	fmt.Fprintf(tw, "at bound\t%t\n", o.Result.AtBound)
	fmt.Fprintf(tw, "objective\t%g\n", o.Result.Objective)
	fmt.Fprintf(tw, "condition\t%.3g\n", o.Result.Condition)
	fmt.Fprintf(tw, "method\t%s\n", o.Result.Method)
	fmt.Fprintf(tw, "weight sum\t%g\n", o.Measures.Weights.RawSum)
	tw.Flush()
}

func printReplay(out io.Writer, r runs.Run, replayed riskaversion.Result) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.ID)
	fmt.Fprintf(tw, "created\t%s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "assets\t%s\n", strings.Join(r.Snapshot.Assets, ","))
	fmt.Fprintf(tw, "stored q\t%g (%s)\n", r.Q, r.Method)
	fmt.Fprintf(tw, "replayed q\t%g (%s)\n", replayed.Q, replayed.Method)
	fmt.Fprintf(tw, "weight sum\t%g\n", r.WeightSum)
	fmt.Fprintf(tw, "policy\t%s\n", r.Policy)
	tw.Flush()
}

func printHistory(out io.Writer, list []runs.Run) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tASSETS\tQ\tAT BOUND\tMETHOD\tPOLICY\tWEIGHT SUM")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%t\t%s\t%s\t%g\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Assets, r.Q, r.AtBound, r.Method, r.Policy, r.WeightSum)
	}
	tw.Flush()
}
