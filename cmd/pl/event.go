package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/ui"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	GroupID: "plan",
	Short:   "Manage timeline events",
}

var eventAddCmd = &cobra.Command{
	Use:   "add <user> <title>",
	Short: "Add a local event",
	Long: `Add a local event. It is pushed to the remote calendar on the next sync.
The event is refused when its day already holds the maximum number of
events (see 'pl focus show').

Examples:
  pl event add alice "Dentist" --start "2026-03-04 10:00" --duration 45m --at "12 Rue de Rivoli, Paris"
  pl event add alice "Deep work" --start "tomorrow 9am" --end "tomorrow 11am" --focus`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")
		durationFlag, _ := cmd.Flags().GetString("duration")
		address, _ := cmd.Flags().GetString("at")
		isFocus, _ := cmd.Flags().GetBool("focus")

		a := mustOpen(nil)
		defer a.Close()

		start, err := parseTime(startFlag, a.now(), a.loc)
		if err != nil {
			fatalf("--start: %v", err)
		}
		var end time.Time
		if endFlag != "" {
			if end, err = parseTime(endFlag, a.now(), a.loc); err != nil {
				fatalf("--end: %v", err)
			}
		} else {
			minutes, err := parseDuration(durationFlag)
			if err != nil {
				fatalf("%v", err)
			}
			end = start.Add(time.Duration(minutes) * time.Minute)
		}

		e := &schema.Event{
			UserID: args[0],
			Title:  args[1],
			Start:  start.UTC(),
			End:    end.UTC(),
		}
		if isFocus {
			e.Category = schema.CategoryFocus
		}
		if loc := locationFromFlags(cmd, address); loc != nil {
			e.Location = loc
		}
		if err := a.alloc.AddEvent(context.Background(), e); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(e.ID), formatSpan(e.Start, e.End, a.loc))
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List events",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dayFlag, _ := cmd.Flags().GetString("day")
		days, _ := cmd.Flags().GetInt("days")
		all, _ := cmd.Flags().GetBool("all")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		day, err := parseDay(dayFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}
		d := day.In(a.loc)
		from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, a.loc)
		to := from.AddDate(0, 0, max(days, 1))

		events, err := a.db.ListEvents(ctx, store.EventFilter{
			UserID: args[0], From: from, To: to, ExcludeCancelled: !all,
		})
		if err != nil {
			fatalf("%v", err)
		}
		segments, err := a.db.ListTravelSegments(ctx, args[0], from, to)
		if err != nil {
			fatalf("%v", err)
		}
		travelTo := make(map[string]*schema.TravelSegment, len(segments))
		for _, s := range segments {
			travelTo[s.ToEventID] = s
		}

		if len(events) == 0 {
			fmt.Println(ui.RenderMuted("no events"))
			return
		}
		rows := make([][]string, 0, len(events))
		for _, e := range events {
			if s, ok := travelTo[e.ID]; ok {
				rows = append(rows, []string{"", ui.RenderMuted(fmt.Sprintf("travel (%s)", s.Mode)),
					formatSpan(s.Start, s.End, a.loc), "", ""})
			}
			where := ""
			if e.Location != nil {
				where = e.Location.Name
				if where == "" {
					where = e.Location.Address
				}
			}
			rows = append(rows, []string{e.ID, e.Title, formatSpan(e.Start, e.End, a.loc), where, eventState(e)})
		}
		fmt.Println(ui.Table([]string{"ID", "Title", "When", "Where", "State"}, rows))
	},
}

var eventCancelCmd = &cobra.Command{
	Use:   "cancel <event-id>",
	Short: "Cancel an event and refill the freed time",
	Long: `Cancel an event. The time it frees, up to the next event minus any travel
needed to reach it, is filled with the most urgent pending task that fits.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		res, err := a.alloc.Reshuffle(context.Background(), args[0])
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s cancelled %s\n", ui.RenderPass("✓"), res.Cancelled.Title)
		if res.Released > 0 {
			fmt.Printf("  %d task(s) returned to pending\n", res.Released)
		}
		if res.Placement == nil {
			fmt.Printf("  %s no pending task fits %s\n", ui.RenderMuted("·"), formatSpan(res.Freed.Start, res.Freed.End, a.loc))
			return
		}
		fmt.Printf("  %s placed %q at %s\n", ui.RenderAccent("→"), res.Placement.Task.Title,
			formatSpan(res.Placement.Event.Start, res.Placement.Event.End, a.loc))
		if res.Travel != nil {
			fmt.Printf("  %s %d min %s to %s\n", ui.RenderAccent("→"), res.Travel.DurationMinutes, res.Travel.Mode, res.Boundary.Title)
		}
	},
}

var eventMoveCmd = &cobra.Command{
	Use:   "move <event-id>",
	Short: "Move an event to a new slot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		start, err := parseTime(startFlag, a.now(), a.loc)
		if err != nil {
			fatalf("--start: %v", err)
		}
		var end time.Time
		if endFlag == "" {
			e, err := a.db.GetEvent(ctx, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			end = start.Add(e.End.Sub(e.Start))
		} else if end, err = parseTime(endFlag, a.now(), a.loc); err != nil {
			fatalf("--end: %v", err)
		}

		e, err := a.alloc.Reschedule(ctx, args[0], start, end)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s moved %s to %s\n", ui.RenderPass("✓"), e.Title, formatSpan(e.Start, e.End, a.loc))
	},
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event here and on the remote calendar",
	Long: `Mark an event for deletion. The next sync removes it from the remote
calendar and then locally. Use --push to do it now.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		push, _ := cmd.Flags().GetBool("push")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		e, err := a.db.GetEvent(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		e.Status = schema.StatusPendingDeletion
		e.SyncStatus = schema.SyncUnsynced
		e.Touch()
		if err := a.db.UpsertEvent(ctx, e); err != nil {
			fatalf("%v", err)
		}
		if push {
			if err := a.rec.SyncEvent(ctx, e.ID); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s deleted %s\n", ui.RenderPass("✓"), e.Title)
			return
		}
		fmt.Printf("%s %s will be deleted on the next sync\n", ui.RenderPass("✓"), e.Title)
	},
}

var eventPushCmd = &cobra.Command{
	Use:   "push <event-id>",
	Short: "Push one event to the remote calendar now",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		later, _ := cmd.Flags().GetBool("later")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		if later {
			if err := a.rec.MarkForSync(ctx, args[0]); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s %s queued for the next sync\n", ui.RenderPass("✓"), args[0])
			return
		}
		if err := a.rec.SyncEvent(ctx, args[0]); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s pushed %s\n", ui.RenderPass("✓"), args[0])
	},
}

func eventState(e *schema.Event) string {
	switch {
	case e.Status == schema.StatusCancelled:
		return ui.RenderMuted("cancelled")
	case e.Status == schema.StatusPendingDeletion:
		return ui.RenderWarn("deleting")
	case e.SyncStatus == schema.SyncConflict:
		return ui.RenderFail("conflict")
	case e.SyncStatus == schema.SyncUnsynced:
		return ui.RenderWarn("unsynced")
	}
	return ui.RenderPass(string(e.Status))
}

// locationFromFlags builds a location from --at, --lat and --lon.
func locationFromFlags(cmd *cobra.Command, address string) *schema.Location {
	var loc schema.Location
	loc.Address = address
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		loc.Latitude, loc.Longitude = &lat, &lon
	}
	if !loc.Known() {
		return nil
	}
	return &loc
}

func init() {
	eventAddCmd.Flags().String("start", "", "Start time (required)")
	eventAddCmd.Flags().String("end", "", "End time (overrides --duration)")
	eventAddCmd.Flags().StringP("duration", "d", "60", "Length in minutes or as a duration")
	eventAddCmd.Flags().String("at", "", "Address")
	eventAddCmd.Flags().Float64("lat", 0, "Latitude")
	eventAddCmd.Flags().Float64("lon", 0, "Longitude")
	eventAddCmd.Flags().Bool("focus", false, "Mark as a protected focus block")
	_ = eventAddCmd.MarkFlagRequired("start")

	eventListCmd.Flags().String("day", "", "First day (default today)")
	eventListCmd.Flags().Int("days", 1, "Number of days")
	eventListCmd.Flags().Bool("all", false, "Include cancelled events")

	eventMoveCmd.Flags().String("start", "", "New start (required)")
	eventMoveCmd.Flags().String("end", "", "New end (default keeps the length)")
	_ = eventMoveCmd.MarkFlagRequired("start")

	eventDeleteCmd.Flags().Bool("push", false, "Delete on the remote calendar now")
	eventPushCmd.Flags().Bool("later", false, "Only flag the event for the next sync")

	eventCmd.AddCommand(eventAddCmd, eventListCmd, eventCancelCmd, eventMoveCmd, eventDeleteCmd, eventPushCmd)
	rootCmd.AddCommand(eventCmd)
}
