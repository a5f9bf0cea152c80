package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/ui"
)

var gapsCmd = &cobra.Command{
	Use:     "gaps <user>",
	GroupID: "plan",
	Short:   "Show free time in a day's working window",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dayFlag, _ := cmd.Flags().GetString("day")

		a := mustOpen(nil)
		defer a.Close()

		day, err := parseDay(dayFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}
		gaps, err := a.focus.FreeGaps(context.Background(), args[0], day)
		if err != nil {
			fatalf("%v", err)
		}
		printSlots(fmt.Sprintf("Free time for %s on %s", args[0], day.Format("Mon Jan 2")), gaps, a)
	},
}

var focusCmd = &cobra.Command{
	Use:     "focus",
	GroupID: "plan",
	Short:   "Manage focus preferences and protected windows",
	Long: `Focus preferences limit how busy a day may get and reserve free gaps
inside a preferred part of the day for deep work.

Bands: morning (09-12), afternoon (14-17), evening (18-21).`,
}

var focusSlotsCmd = &cobra.Command{
	Use:   "slots <user>",
	Short: "Show the protected focus windows for a day",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dayFlag, _ := cmd.Flags().GetString("day")

		a := mustOpen(nil)
		defer a.Close()

		day, err := parseDay(dayFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}
		slots, err := a.focus.OptimizedFocusSlots(context.Background(), args[0], day)
		if err != nil {
			fatalf("%v", err)
		}
		printSlots(fmt.Sprintf("Focus windows for %s on %s", args[0], day.Format("Mon Jan 2")), slots, a)
	},
}

var focusShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's focus preferences",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		p, err := a.focus.Preferences(context.Background(), args[0])
		if err != nil {
			fatalf("%v", err)
		}
		printPreference(p)
	},
}

var focusSetCmd = &cobra.Command{
	Use:   "set <user>",
	Short: "Update focus preferences",
	Long: `Update focus preferences. Only the flags given are changed.

Examples:
  pl focus set alice --max-events 4 --band afternoon
  pl focus set alice --enabled=false`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		p, err := a.focus.Preferences(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		if cmd.Flags().Changed("max-events") {
			p.MaxEventsPerDay, _ = cmd.Flags().GetInt("max-events")
		}
		if cmd.Flags().Changed("min-focus") {
			p.MinFocusMinutes, _ = cmd.Flags().GetInt("min-focus")
		}
		if cmd.Flags().Changed("band") {
			s, _ := cmd.Flags().GetString("band")
			band, err := schema.ParseFocusBand(s)
			if err != nil {
				fatalf("%v", err)
			}
			p.PreferredBand = band
		}
		if cmd.Flags().Changed("enabled") {
			p.FocusModeEnabled, _ = cmd.Flags().GetBool("enabled")
		}

		if err := a.focus.UpdatePreferences(ctx, p); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s saved focus preferences for %s\n", ui.RenderPass("✓"), args[0])
		printPreference(p)
	},
}

var focusEditCmd = &cobra.Command{
	Use:   "edit <user>",
	Short: "Edit focus preferences interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !ui.IsInteractive() {
			fatalf("focus edit needs a terminal; use 'pl focus set' instead")
		}

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		p, err := a.focus.Preferences(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		maxEvents := strconv.Itoa(p.MaxEventsPerDay)
		minFocus := strconv.Itoa(p.MinFocusMinutes)
		band := string(p.PreferredBand)
		enabled := p.FocusModeEnabled

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Protect focus time?").
					Value(&enabled),
				huh.NewSelect[string]().
					Title("Preferred band").
					Options(
						huh.NewOption("Morning (09-12)", string(schema.BandMorning)),
						huh.NewOption("Afternoon (14-17)", string(schema.BandAfternoon)),
						huh.NewOption("Evening (18-21)", string(schema.BandEvening)),
					).
					Value(&band),
				huh.NewInput().
					Title("Minimum focus block (minutes)").
					Value(&minFocus).
					Validate(positiveInt),
				huh.NewInput().
					Title("Maximum events per day").
					Value(&maxEvents).
					Validate(positiveInt),
			),
		)
		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println(ui.RenderMuted("cancelled"))
				return
			}
			fatalf("%v", err)
		}

		p.MaxEventsPerDay, _ = strconv.Atoi(maxEvents)
		p.MinFocusMinutes, _ = strconv.Atoi(minFocus)
		p.PreferredBand = schema.FocusBand(band)
		p.FocusModeEnabled = enabled

		if err := a.focus.UpdatePreferences(ctx, p); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s saved focus preferences for %s\n", ui.RenderPass("✓"), args[0])
	},
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("enter a positive whole number")
	}
	return nil
}

func printPreference(p *schema.FocusPreference) {
	start, end := p.PreferredBand.Hours()
	enabled := ui.RenderPass("on")
	if !p.FocusModeEnabled {
		enabled = ui.RenderMuted("off")
	}
	fmt.Println(ui.Table([]string{"Setting", "Value"}, [][]string{
		{"Focus mode", enabled},
		{"Preferred band", fmt.Sprintf("%s (%02d:00-%02d:00)", p.PreferredBand, start, end)},
		{"Min focus block", fmt.Sprintf("%d min", p.MinFocusMinutes)},
		{"Max events per day", strconv.Itoa(p.MaxEventsPerDay)},
	}))
}

func printSlots(title string, slots []schema.Slot, a *app) {
	fmt.Println(ui.Heading(title))
	if len(slots) == 0 {
		fmt.Println(ui.RenderMuted("none"))
		return
	}
	rows := make([][]string, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, []string{
			s.Start.In(a.loc).Format("15:04"),
			s.End.In(a.loc).Format("15:04"),
			fmt.Sprintf("%d min", s.Minutes()),
		})
	}
	fmt.Println(ui.Table([]string{"Start", "End", "Length"}, rows))
}

func init() {
	gapsCmd.Flags().String("day", "", "Day to inspect (default today)")
	focusSlotsCmd.Flags().String("day", "", "Day to inspect (default today)")

	focusSetCmd.Flags().Int("max-events", schema.DefaultMaxEventsPerDay, "Maximum events per day")
	focusSetCmd.Flags().Int("min-focus", schema.DefaultMinFocusMinutes, "Minimum focus block in minutes")
	focusSetCmd.Flags().String("band", string(schema.BandMorning), "Preferred band (morning, afternoon, evening)")
	focusSetCmd.Flags().Bool("enabled", true, "Protect focus windows")

	focusCmd.AddCommand(focusSlotsCmd, focusShowCmd, focusSetCmd, focusEditCmd)
	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(focusCmd)
}
