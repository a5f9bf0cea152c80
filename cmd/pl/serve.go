package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/daemon"
	"github.com/mschirtzinger/planner/internal/dashboard"
	"github.com/mschirtzinger/planner/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the sync daemon and the dashboard",
	Long: `Run the reconciliation daemon on the configured cron schedule together with
the dashboard HTTP API and live feed.

Every linked, sync-enabled account is reconciled on each tick, with up to
sync.workers cycles at once. When import.dir is set, .ics files dropped
into <import.dir>/<user>/ are imported as local events.

Stops on SIGINT or SIGTERM after in-flight cycles finish.`,
	Run: func(cmd *cobra.Command, args []string) {
		runNow, _ := cmd.Flags().GetBool("now")
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, logger, logCloser, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		var server *dashboard.Server
		var pub publisher
		if !noDashboard {
			if addr == "" {
				addr = cfg.Dashboard.Addr
			}
			server = dashboard.NewServer(&dashboard.Config{
				Addr:   addr,
				Logger: logger.With("component", "dashboard"),
			})
			pub = server
		}

		a, err := wireApp(cfg, logger, logCloser, pub)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		if server != nil {
			server.Mount(dashboard.NewAPI(dashboard.Services{
				Focus:      a.focus,
				Allocator:  a.alloc,
				Reconciler: a.rec,
				Now:        a.now,
			}, a.logger.With("component", "api")))
		}

		dcfg := daemon.DefaultConfig()
		dcfg.Schedule = a.cfg.Sync.Cron
		dcfg.Workers = a.cfg.Sync.Workers
		dcfg.Location = a.loc
		dcfg.RunOnStart = runNow
		dcfg.ImportDir = a.cfg.Import.Dir
		dcfg.Logger = a.logger.With("component", "daemon")

		d, err := daemon.New(a.db, a.rec, dcfg)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if server != nil {
			if err := server.Start(); err != nil {
				fatalf("starting dashboard: %v", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					a.logger.Warn("dashboard shutdown failed", "error", err)
				}
			}()
			fmt.Printf("%s dashboard on http://%s\n", ui.RenderAccent("▶"), server.GetAddr())
		}
		fmt.Printf("%s sync schedule %q, next run %s\n",
			ui.RenderAccent("▶"), a.cfg.Sync.Cron, d.Next(a.now()).Format("Mon 15:04"))

		if err := d.Start(ctx); err != nil {
			fatalf("%v", err)
		}
		fmt.Println(ui.RenderMuted("stopped"))
	},
}

func init() {
	serveCmd.Flags().Bool("now", false, "Run a sync batch immediately on start")
	serveCmd.Flags().Bool("no-dashboard", false, "Run the daemon without the HTTP dashboard")
	serveCmd.Flags().String("addr", "", "Dashboard listen address (default dashboard.addr)")
	rootCmd.AddCommand(serveCmd)
}
