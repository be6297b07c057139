package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/simulator"
)

func newInitCmd(a *App) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "init [theme]",
		Short: "Generate a new city population",
		Long: `Generate the initial population for a themed city, link it into families
and a social layer, then run the first interactions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			var opts []simulator.Option
			if !quiet {
				opts = append(opts, simulator.WithMessageHandler(func(m model.Message) { printMessage(a.out, m) }))
			}

			res, err := a.city(opts...).Bootstrap(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%sCity founded:%s %s\n", colorGreen, colorReset, res.Theme)
			fmt.Fprintf(a.out, "  %s in %s\n",
				english.Plural(len(res.Citizens), "citizen", "citizens"),
				english.Plural(res.Families, "family", "families"))
			fmt.Fprintf(a.out, "  %s\n", english.Plural(res.Social.Total(), "social tie", "social ties"))
			for _, r := range res.Interactions.Reports {
				printReport(a.out, r)
			}
			if res.Interactions.Failed > 0 {
				fmt.Fprintf(a.out, "%s%d interactions failed%s\n", colorYellow, res.Interactions.Failed, colorReset)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print interaction transcripts")
	return cmd
}

func newAddCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add [n]",
		Short: "Add citizens to the city",
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

			added, social, err := a.city().AddCitizens(cmd.Context(), n)
			if err != nil {
				return err
			}
			for _, c := range added {
				printCitizenLine(a.out, c)
			}
			fmt.Fprintf(a.out, "%sAdded %s, %s%s\n", colorGreen,
				english.Plural(len(added), "citizen", "citizens"),
				english.Plural(social.Total(), "new social tie", "new social ties"),
				colorReset)
			return nil
		},
	}
}

func newListCmd(a *App) *cobra.Command {
	var occupation string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List citizens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			citizens, err := a.citizens(occupation)
			if err != nil {
				return err
			}
			for _, c := range citizens {
				printCitizenLine(a.out, c)
			}
			fmt.Fprintf(a.out, "%s%s%s\n", colorGray, english.Plural(len(citizens), "citizen", "citizens"), colorReset)
			return nil
		},
	}
	cmd.Flags().StringVar(&occupation, "occupation", "", "only list citizens with this occupation")
	return cmd
}

func newShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name|id>",
		Short: "Show a citizen's profile, relationships and memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			c, err := a.lookup(strings.Join(args, " "))
			if err != nil {
				return err
			}
			printCitizen(a.out, c)
			return nil
		},
	}
}

func newStatsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show city statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			s, err := a.store.Stats()
			if err != nil {
				return err
			}
			today, err := a.store.ListByDate(time.Now())
			if err != nil {
				return err
			}
			printStats(a.out, s, len(today))
			return nil
		},
	}
}

// citizens lists everyone, or only holders of occupation when it is set
func (a *App) citizens(occupation string) ([]*model.Citizen, error) {
	if occupation == "" {
		return a.store.List()
	}
	ids, err := a.store.ListByOccupation(occupation)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Citizen, 0, len(ids))
	for _, id := range ids {
		c, err := a.store.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// lookup resolves a citizen by id, then by case-insensitive name
func (a *App) lookup(ref string) (*model.Citizen, error) {
	ref = strings.TrimSpace(ref)
	c, err := a.store.Get(ref)
	if err == nil {
		return c, nil
	}
	if !model.IsNotFound(err) {
		return nil, err
	}
	c, err = a.store.FindByName(ref)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, fmt.Errorf("no citizen named %q", ref)
		}
		return nil, err
	}
	return c, nil
}

func countArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("expected a positive count, got %q", args[0])
	}
	return n, nil
}
