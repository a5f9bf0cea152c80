package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/loadtest"
	"github.com/mschirtzinger/planner/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "setup",
	Short:   "Measure allocation latency under concurrent load",
	Long: `Build a throwaway database of generated users, events and tasks, then
place every task with several concurrent callers per user and query free
gaps from many readers at once. Afterwards every timeline is checked for
overlapping events and doubly-bound tasks.

The configured database is not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadtest.DefaultOptions()
		opts.Users, _ = cmd.Flags().GetInt("users")
		opts.TasksPerUser, _ = cmd.Flags().GetInt("tasks")
		opts.EventsPerUser, _ = cmd.Flags().GetInt("events")
		callers, _ := cmd.Flags().GetInt("callers")
		readers, _ := cmd.Flags().GetInt("readers")
		queries, _ := cmd.Flags().GetInt("queries")

		dir, err := os.MkdirTemp("", "planner-loadtest-")
		if err != nil {
			fatalf("%v", err)
		}
		defer os.RemoveAll(dir)

		f, err := loadtest.NewFixture(filepath.Join(dir, "load.db"), opts)
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()
		ctx := context.Background()

		fmt.Printf("%s %d users, %d tasks and %d events each\n\n",
			ui.RenderAccent("▶"), opts.Users, opts.TasksPerUser, opts.EventsPerUser)

		alloc, err := f.RunAllocation(ctx, callers)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ui.Heading(fmt.Sprintf("Allocate (%d callers per user)", callers)))
		fmt.Println(ui.Table([]string{"Metric", "Value"}, alloc.Rows()))

		gaps, err := f.RunGapQueries(ctx, readers, queries)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ui.Heading(fmt.Sprintf("Free gaps (%d readers)", readers)))
		fmt.Println(ui.Table([]string{"Metric", "Value"}, gaps.Rows()))

		placed, err := f.Placed(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if err := f.Verify(ctx); err != nil {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s %d tasks placed, timelines consistent\n", ui.RenderPass("✓"), placed)
	},
}

func init() {
	def := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("users", def.Users, "Simulated users")
	loadtestCmd.Flags().Int("tasks", def.TasksPerUser, "Pending tasks per user")
	loadtestCmd.Flags().Int("events", def.EventsPerUser, "Existing events per user")
	loadtestCmd.Flags().Int("callers", 4, "Concurrent allocation callers per user")
	loadtestCmd.Flags().Int("readers", 50, "Concurrent free-gap readers")
	loadtestCmd.Flags().Int("queries", 20, "Queries per reader")
	rootCmd.AddCommand(loadtestCmd)
}
