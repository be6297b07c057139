package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/schedule"
	"github.com/hession/citysim/internal/simulator"
)

func newInteractCmd(a *App) *cobra.Command {
	var (
		messages int
		theme    string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "interact [n]",
		Short: "Run interactions between randomly chosen citizens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := countArg(args, 5)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			return a.runInteractions(cmd.Context(), n, simulator.Options{Theme: theme, Messages: messages}, quiet)
		},
	}
	cmd.Flags().IntVarP(&messages, "messages", "m", 0, "messages per interaction (default: random within the configured range)")
	cmd.Flags().StringVar(&theme, "theme", "", "override the city theme for these interactions")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print transcripts")
	return cmd
}

func newScenarioCmd(a *App) *cobra.Command {
	var messages int
	cmd := &cobra.Command{
		Use:   "scenario <topic> <name> <name> [name...]",
		Short: "Run one interaction on a topic between named citizens",
		Example: `  citysim scenario "the new tram line" "Ada Obi" "Lin Park"`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			sim := a.simulator(simulator.WithMessageHandler(func(m model.Message) { printMessage(a.out, m) }))
			r, err := sim.Run(cmd.Context(), simulator.Options{Theme: args[0], Participants: args[1:], Messages: messages})
			if err != nil {
				return err
			}
			printReport(a.out, r)
			fmt.Fprintf(a.out, "%s1 interaction completed%s\n", colorGreen, colorReset)
			return nil
		},
	}
	cmd.Flags().IntVarP(&messages, "messages", "m", 0, "number of messages (default: random within the configured range)")
	return cmd
}

func (a *App) runInteractions(ctx context.Context, n int, opts simulator.Options, quiet bool) error {
	var simOpts []simulator.Option
	if !quiet {
		simOpts = append(simOpts, simulator.WithMessageHandler(func(m model.Message) { printMessage(a.out, m) }))
	}
	sim := a.simulator(simOpts...)

	res, err := sim.RunBatch(ctx, n, opts)
	for _, r := range res.Reports {
		printReport(a.out, r)
	}
	if err != nil {
		if errors.Is(err, model.ErrInsufficientPopulation) {
			return fmt.Errorf("%w: run `citysim init` or name at least two existing citizens", err)
		}
		return err
	}
	fmt.Fprintf(a.out, "%s%s completed%s", colorGreen, english.Plural(len(res.Reports), "interaction", "interactions"), colorReset)
	if res.Failed > 0 {
		fmt.Fprintf(a.out, ", %s%d failed%s", colorYellow, res.Failed, colorReset)
	}
	fmt.Fprintln(a.out)
	return nil
}

func newRunCmd(a *App) *cobra.Command {
	var (
		spec  string
		batch int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the city simulating on a schedule",
		Long: `Run batches of interactions on a cron schedule until interrupted.
The schedule accepts five-field cron expressions and descriptors such as "@every 10m".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			if spec == "" {
				spec = a.cfg.Schedule.Spec
			}
			if batch <= 0 {
				batch = a.cfg.Schedule.Batch
			}
			r, err := schedule.New(spec, batch, a.simulator(), logger.Named("schedule"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(a.out, "%sSimulating on %q, %s per tick. Press Ctrl+C to stop.%s\n",
				colorCyan, spec, english.Plural(batch, "interaction", "interactions"), colorReset)
			start := time.Now()
			if err := r.Run(ctx); err != nil {
				return err
			}

			s := r.Stats()
			fmt.Fprintf(a.out, "\n%sStopped after %s:%s %d ticks, %d skipped, %d interactions, %d failures\n",
				colorCyan, FormatDuration(time.Since(start)), colorReset,
				s.Ticks, s.Skipped, s.Interactions, s.Failures)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "schedule", "", "cron spec overriding schedule.spec")
	cmd.Flags().IntVar(&batch, "batch", 0, "interactions per tick overriding schedule.batch")
	return cmd
}
