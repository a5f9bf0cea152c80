// Package daemon runs reconciliation in the background.
//
// The daemon consists of two components:
//
//   - Daemon: a cron-scheduled batch driver. Each tick enumerates the accounts
//     eligible for sync (linked and sync-enabled) and runs one reconciliation
//     cycle per user on a bounded worker pool.
//   - DropWatcher: an fsnotify watcher over an import directory laid out as
//     <dir>/<userID>/*.ics. New calendar files are imported as local events
//     for that user and renamed with a .done suffix.
//
// # Per-user isolation
//
// A cycle that fails, reports a schedule conflict or panics is recorded in
// the batch report and logged with the user's id. It never stops the batch
// and never touches another user's cycle.
//
// # Usage
//
//	d, err := daemon.New(db, rec, &daemon.Config{
//	    Schedule:  "*/15 * * * *",
//	    Workers:   4,
//	    ImportDir: "/var/lib/planner/import",
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start stops the scheduler, waits for a
// running batch to finish and closes the watcher.
package daemon
