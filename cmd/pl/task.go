package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/allocate"
	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "plan",
	Short:   "Manage tasks waiting to be placed",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <user> <title>",
	Short: "Add a pending task",
	Long: `Add a pending task. Lower priority values are more urgent.

Examples:
  pl task add alice "Write report" --duration 90 --priority 1 --deadline "friday 5pm"
  pl task add alice "Review PR" --duration 30m --place`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		durationFlag, _ := cmd.Flags().GetString("duration")
		priority, _ := cmd.Flags().GetInt("priority")
		deadlineFlag, _ := cmd.Flags().GetString("deadline")
		place, _ := cmd.Flags().GetBool("place")

		minutes, err := parseDuration(durationFlag)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		deadline, err := parseOptionalTime(deadlineFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}

		t := &schema.Task{
			UserID:          args[0],
			Title:           args[1],
			DurationMinutes: minutes,
			Priority:        priority,
			Deadline:        deadline,
		}
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			fatalf("invalid task: %v", err)
		}
		if err := a.db.UpsertTask(ctx, t); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s added task %s\n", ui.RenderPass("✓"), ui.RenderAccent(t.ID))

		if place {
			p, err := a.alloc.Allocate(ctx, t.ID, nil, nil)
			if err != nil {
				fatalf("placing task: %v", err)
			}
			printPlacements(a, []*allocate.Placement{p})
		}
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List tasks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pending, _ := cmd.Flags().GetBool("pending")
		all, _ := cmd.Flags().GetBool("all")

		a := mustOpen(nil)
		defer a.Close()

		tasks, err := a.db.ListTasks(context.Background(), store.TaskFilter{
			UserID:      args[0],
			PendingOnly: pending,
			IncludeDone: all,
		})
		if err != nil {
			fatalf("%v", err)
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("no tasks"))
			return
		}

		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			deadline := ""
			if t.Deadline != nil {
				deadline = t.Deadline.In(a.loc).Format("Mon Jan 2 15:04")
			}
			rows = append(rows, []string{
				t.ID, t.Title, fmt.Sprintf("%d min", t.DurationMinutes),
				strconv.Itoa(t.Priority), deadline, taskState(t),
			})
		}
		fmt.Println(ui.Table([]string{"ID", "Title", "Length", "Pri", "Deadline", "State"}, rows))
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		t, err := a.db.GetTask(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		t.Done = true
		t.Touch()
		if err := a.db.UpsertTask(ctx, t); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s done\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		if err := a.db.DeleteTask(context.Background(), args[0]); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s deleted %s\n", ui.RenderPass("✓"), args[0])
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Change a task",
	Long: `Change a task's title, length, priority or deadline. Only the flags given
are applied. A late task becomes pending again when its deadline or length
changes. The length of a placed task is fixed until its event is cancelled.

Examples:
  pl task edit 5f3c --deadline "next monday 9am"
  pl task edit 5f3c --duration 45 --priority 0
  pl task edit 5f3c --clear-deadline`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		var upd allocate.TaskUpdate
		if cmd.Flags().Changed("title") {
			title, _ := cmd.Flags().GetString("title")
			upd.Title = &title
		}
		if cmd.Flags().Changed("duration") {
			durationFlag, _ := cmd.Flags().GetString("duration")
			minutes, err := parseDuration(durationFlag)
			if err != nil {
				fatalf("%v", err)
			}
			upd.DurationMinutes = &minutes
		}
		if cmd.Flags().Changed("priority") {
			priority, _ := cmd.Flags().GetInt("priority")
			upd.Priority = &priority
		}
		if cmd.Flags().Changed("deadline") {
			deadlineFlag, _ := cmd.Flags().GetString("deadline")
			deadline, err := parseTime(deadlineFlag, a.now(), a.loc)
			if err != nil {
				fatalf("%v", err)
			}
			upd.Deadline = &deadline
		}
		upd.ClearDeadline, _ = cmd.Flags().GetBool("clear-deadline")

		t, err := a.alloc.UpdateTask(context.Background(), args[0], upd)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s %s is %s\n", ui.RenderPass("✓"), t.Title, taskState(t))
	},
}

var taskAllocateCmd = &cobra.Command{
	Use:   "allocate <task-id>",
	Short: "Place one task on the timeline",
	Long: `Place one task. With --start and --end the task is bound to exactly that
slot, which must be free and must not push its day over the event limit.
Without them the first free slot from now that clears focus windows is used.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")

		a := mustOpen(nil)
		defer a.Close()

		start, err := parseOptionalTime(startFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}
		end, err := parseOptionalTime(endFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}

		p, err := a.alloc.Allocate(context.Background(), args[0], start, end)
		if err != nil {
			fatalf("%v", err)
		}
		printPlacements(a, []*allocate.Placement{p})
	},
}

var taskAutoCmd = &cobra.Command{
	Use:   "auto <user>",
	Short: "Place every pending task",
	Long: `Place every pending task, most urgent first: by deadline, then priority,
then insertion order. Tasks that cannot meet their deadline are marked late.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fromFlag, _ := cmd.Flags().GetString("from")

		a := mustOpen(nil)
		defer a.Close()

		cursor, err := parseOptionalTime(fromFlag, a.now(), a.loc)
		if err != nil {
			fatalf("%v", err)
		}
		placements, err := a.alloc.AutoSchedule(context.Background(), args[0], cursor)
		if err != nil {
			fatalf("%v", err)
		}
		if len(placements) == 0 {
			fmt.Println(ui.RenderMuted("no pending tasks"))
			return
		}
		printPlacements(a, placements)
	},
}

func taskState(t *schema.Task) string {
	switch {
	case t.Done:
		return ui.RenderMuted("done")
	case t.Late:
		return ui.RenderFail("late")
	case t.EventID != "":
		return ui.RenderPass("placed")
	}
	return ui.RenderWarn("pending")
}

func printPlacements(a *app, placements []*allocate.Placement) {
	rows := make([][]string, 0, len(placements))
	for _, p := range placements {
		when, state := p.Reason, ui.RenderWarn("pending")
		switch {
		case p.Placed():
			when, state = formatSpan(p.Event.Start, p.Event.End, a.loc), ui.RenderPass("placed")
			if p.Late {
				state = ui.RenderWarn("placed late")
			}
		case p.Late:
			state = ui.RenderFail("late")
		}
		rows = append(rows, []string{p.Task.Title, when, state})
	}
	fmt.Println(ui.Table([]string{"Task", "When", "State"}, rows))
}

func init() {
	taskAddCmd.Flags().StringP("duration", "d", "30", "Length in minutes or as a duration (1h30m)")
	taskAddCmd.Flags().IntP("priority", "p", 2, "Priority (lower is more urgent)")
	taskAddCmd.Flags().String("deadline", "", "Deadline (RFC3339, 'YYYY-MM-DD HH:MM' or e.g. 'friday 5pm')")
	taskAddCmd.Flags().Bool("place", false, "Place the task right away")

	taskListCmd.Flags().Bool("pending", false, "Only unplaced, on-time tasks")
	taskListCmd.Flags().Bool("all", false, "Include completed tasks")

	taskEditCmd.Flags().String("title", "", "New title")
	taskEditCmd.Flags().StringP("duration", "d", "", "New length in minutes or as a duration (1h30m)")
	taskEditCmd.Flags().IntP("priority", "p", 2, "New priority (lower is more urgent)")
	taskEditCmd.Flags().String("deadline", "", "New deadline")
	taskEditCmd.Flags().Bool("clear-deadline", false, "Remove the deadline")
	taskEditCmd.MarkFlagsMutuallyExclusive("deadline", "clear-deadline")

	taskAllocateCmd.Flags().String("start", "", "Explicit slot start")
	taskAllocateCmd.Flags().String("end", "", "Explicit slot end")

	taskAutoCmd.Flags().String("from", "", "Search from this time (default now, or the start of today's working window if later)")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskEditCmd, taskDoneCmd, taskDeleteCmd, taskAllocateCmd, taskAutoCmd)
	rootCmd.AddCommand(taskCmd)
}
