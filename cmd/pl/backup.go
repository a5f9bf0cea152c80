package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/backup"
	"github.com/mschirtzinger/planner/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <user> [file]",
	GroupID: "setup",
	Short:   "Export a user's timeline as JSON Lines",
	Long: `Export a user's account, focus preferences, events, tasks and travel
segments as JSON Lines, to a file or stdout. Calendar credentials are not
exported.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		var out io.Writer = os.Stdout
		if len(args) == 2 {
			f, err := os.OpenFile(args[1], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				fatalf("%v", err)
			}
			defer f.Close()
			out = f
		}

		counts, err := backup.Export(context.Background(), a.db, args[0], out)
		if err != nil {
			fatalf("exporting %s: %v", args[0], err)
		}
		if len(args) == 2 {
			fmt.Printf("%s exported %d records (%d events, %d tasks) to %s\n",
				ui.RenderPass("✓"), counts.Total(), counts.Events, counts.Tasks, args[1])
		}
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore <file>",
	GroupID: "setup",
	Short:   "Restore records from a JSON Lines export",
	Long: `Upsert the records of an export. Existing rows with the same IDs are
overwritten; accounts keep their current calendar credential.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		snapshot, _ := cmd.Flags().GetBool("snapshot")

		a := mustOpen(nil)
		defer a.Close()

		res, err := backup.Restore(context.Background(), a.db, args[0], backup.RestoreOptions{
			DryRun:   dryRun,
			Snapshot: snapshot,
		})
		if err != nil {
			fatalf("%v", err)
		}

		verb := "restored"
		if dryRun {
			verb = "would restore"
		}
		c := res.Restored
		fmt.Printf("%s %s %d events, %d tasks, %d travel segments, %d accounts, %d preferences\n",
			ui.RenderPass("✓"), verb, c.Events, c.Tasks, c.Travel, c.Accounts, c.Preferences)
		if res.Snapshot != "" {
			fmt.Printf("  database snapshot: %s\n", res.Snapshot)
		}
		for _, e := range res.Errors {
			fmt.Printf("  %s %s\n", ui.RenderWarn("!"), e)
		}
	},
}

func init() {
	restoreCmd.Flags().Bool("dry-run", false, "Validate the file without writing")
	restoreCmd.Flags().Bool("snapshot", true, "Copy the database before writing")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreCmd)
}
