package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/ui"
)

var travelCmd = &cobra.Command{
	Use:     "travel",
	GroupID: "plan",
	Short:   "Travel time between events",
}

var travelEstimateCmd = &cobra.Command{
	Use:   "estimate <from-event-id> <to-event-id>",
	Short: "Estimate travel time between two events",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		modeFlag, _ := cmd.Flags().GetString("mode")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		mode := a.mode
		if modeFlag != "" {
			m, err := schema.ParseTransportMode(modeFlag)
			if err != nil {
				fatalf("%v", err)
			}
			mode = m
		}

		from, err := a.db.GetEvent(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		to, err := a.db.GetEvent(ctx, args[1])
		if err != nil {
			fatalf("%v", err)
		}

		est := a.estimator.Estimate(ctx, from.Location, to.Location, mode)
		distance := "unknown"
		if est.DistanceKm != nil {
			distance = fmt.Sprintf("%.1f km", *est.DistanceKm)
		}
		fmt.Printf("%s %d min %s (%s, via %s)\n", ui.RenderAccent("→"), est.Minutes, mode, distance, est.Source)

		if gap := int(to.Start.Sub(from.End).Minutes()); gap < est.Minutes {
			fmt.Printf("%s only %d min between the events\n", ui.RenderWarn("!"), gap)
		}
	},
}

var travelRecalcCmd = &cobra.Command{
	Use:   "recalc <user>",
	Short: "Rebuild travel segments for the coming week",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		modeFlag, _ := cmd.Flags().GetString("mode")

		a := mustOpen(nil)
		defer a.Close()

		var mode schema.TransportMode
		if modeFlag != "" {
			m, err := schema.ParseTransportMode(modeFlag)
			if err != nil {
				fatalf("%v", err)
			}
			mode = m
		}

		segments, err := a.alloc.RecalculateTravel(context.Background(), args[0], mode)
		if err != nil {
			fatalf("%v", err)
		}
		if len(segments) == 0 {
			fmt.Println(ui.RenderMuted("no travel needed"))
			return
		}
		rows := make([][]string, 0, len(segments))
		for _, s := range segments {
			distance := ""
			if s.DistanceKm != nil {
				distance = fmt.Sprintf("%.1f km", *s.DistanceKm)
			}
			rows = append(rows, []string{
				formatSpan(s.Start, s.End, a.loc),
				fmt.Sprintf("%d min", s.DurationMinutes),
				string(s.Mode), distance, s.FromEventID + " → " + s.ToEventID,
			})
		}
		fmt.Println(ui.Table([]string{"When", "Length", "Mode", "Distance", "Between"}, rows))
	},
}

func init() {
	travelEstimateCmd.Flags().StringP("mode", "m", "", "Transport mode (walking, cycling, driving, transit)")
	travelRecalcCmd.Flags().StringP("mode", "m", "", "Transport mode (default travel.default_mode)")

	travelCmd.AddCommand(travelEstimateCmd, travelRecalcCmd)
	rootCmd.AddCommand(travelCmd)
}
