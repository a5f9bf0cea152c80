package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/daemon"
	"github.com/mschirtzinger/planner/internal/reconcile"
	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [user]",
	GroupID: "sync",
	Short:   "Reconcile with the remote calendar",
	Long: `Run one reconciliation cycle: pull the remote window, check the merged
timeline for overlaps and push local changes.

With a user, reconcile that account only. Without one, run a batch over
every linked, sync-enabled account the way the daemon does.

A detected overlap aborts the push; the pulled events are kept.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pullOnly, _ := cmd.Flags().GetBool("pull-only")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		if len(args) == 1 {
			if pullOnly {
				n, err := a.rec.Pull(ctx, args[0])
				if err != nil {
					fatalf("pulling %s: %v", args[0], err)
				}
				fmt.Printf("%s pulled %d events for %s\n", ui.RenderPass("✓"), n, args[0])
				return
			}
			syncOne(ctx, a, args[0])
			return
		}

		d, err := daemon.New(a.db, a.rec, &daemon.Config{
			Workers:  a.cfg.Sync.Workers,
			Location: a.loc,
			Logger:   a.logger.With("component", "daemon"),
		})
		if err != nil {
			fatalf("%v", err)
		}
		report, err := d.RunBatch(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		printBatch(report)
	},
}

func syncOne(ctx context.Context, a *app, userID string) {
	res, err := a.rec.Reconcile(ctx, userID)
	if report, ok := reconcile.AsConflict(err); ok {
		fmt.Printf("%s %d overlapping pair(s); nothing was pushed\n\n", ui.RenderFail("✗"), len(report.Conflicts))
		rows := make([][]string, 0, len(report.Conflicts))
		for _, p := range report.Conflicts {
			rows = append(rows, []string{
				p.A.Title, formatSpan(p.A.Start, p.A.End, a.loc), string(p.A.Source),
				p.B.Title, formatSpan(p.B.Start, p.B.End, a.loc), string(p.B.Source),
			})
		}
		fmt.Println(ui.Table([]string{"First", "When", "Source", "Second", "When", "Source"}, rows))
		os.Exit(2)
	}
	if err != nil {
		switch {
		case reconcile.IsAccountNotLinked(err):
			fatalf("%s has no remote calendar credential (see 'pl account link')", userID)
		case remote.IsRetryable(err):
			fatalf("remote calendar unavailable, try again later: %v", err)
		default:
			fatalf("reconciling %s: %v", userID, err)
		}
	}

	fmt.Printf("%s %s: pulled %d, pushed %d\n", ui.RenderPass("✓"), userID, res.Pulled, res.Pushed)
	for _, f := range res.Failures {
		fmt.Printf("  %s %s %s: %s\n", ui.RenderWarn("!"), f.Op, f.EventID, f.Error)
	}
}

func printBatch(report *daemon.BatchReport) {
	if len(report.Outcomes) == 0 {
		fmt.Println(ui.RenderMuted("no linked accounts with sync enabled"))
		return
	}

	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		status := ui.RenderPass("ok")
		var pulled, pushed, detail string
		switch {
		case o.Conflict != nil:
			status = ui.RenderWarn("conflict")
			detail = fmt.Sprintf("%d overlapping pair(s)", len(o.Conflict.Conflicts))
		case o.Error != "":
			status = ui.RenderFail("failed")
			detail = o.Error
		}
		if o.Result != nil {
			pulled = strconv.Itoa(o.Result.Pulled)
			pushed = strconv.Itoa(o.Result.Pushed)
			if n := len(o.Result.Failures); n > 0 {
				detail = fmt.Sprintf("%d push failure(s)", n)
			}
		}
		rows = append(rows, []string{o.UserID, status, pulled, pushed, o.Duration.Round(time.Millisecond).String(), detail})
	}
	fmt.Println(ui.Table([]string{"User", "Status", "Pulled", "Pushed", "Took", "Detail"}, rows))

	ok, conflicted, failed := report.Counts()
	fmt.Printf("\n%d ok, %d conflicted, %d failed\n", ok, conflicted, failed)
}

var importCmd = &cobra.Command{
	Use:     "import <user> <file.ics>",
	GroupID: "sync",
	Short:   "Import an iCalendar file as local events",
	Long: `Import the events of an .ics file into a user's timeline as local,
unsynced events. Recurring events are expanded inside the sync window.
Re-importing the same file updates the events in place.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		f, err := os.Open(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()

		n, err := a.rec.ImportICS(context.Background(), args[0], f)
		if err != nil {
			fatalf("importing %s: %v", args[1], err)
		}
		fmt.Printf("%s imported %d events for %s\n", ui.RenderPass("✓"), n, args[0])
	},
}

func init() {
	syncCmd.Flags().Bool("pull-only", false, "Only pull remote changes (requires a user)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
}

// formatSpan renders an interval in loc, eliding the end date when it
// matches the start.
func formatSpan(start, end time.Time, loc *time.Location) string {
	s, e := start.In(loc), end.In(loc)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		return s.Format("Mon Jan 2 15:04") + "-" + e.Format("15:04")
	}
	return s.Format("Mon Jan 2 15:04") + " - " + e.Format("Mon Jan 2 15:04")
}
