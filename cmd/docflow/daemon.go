package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pacetech/docflow/internal/docflow/daemon"
	"github.com/pacetech/docflow/internal/docflow/dashboard"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
	"github.com/pacetech/docflow/internal/logging"
	"github.com/pacetech/docflow/internal/ui"
)

// requestFunc adapts a function to dashboard.SyncRequester.
type requestFunc func(reason string) bool

func (f requestFunc) RequestSync(reason string) bool { return f(reason) }

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon and dashboard",
	Long: `Run sync passes automatically until interrupted.

A pass is started:
  - at startup, when the endpoint is reachable
  - when connectivity comes back, after a short settle delay
  - periodically while forms are waiting
  - when a record file lands in the inbox directory
  - on POST /api/sync from the dashboard

The dashboard serves the sync indicator over WebSocket at ws://localhost:<port>/ws.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		noInbox, _ := cmd.Flags().GetBool("no-inbox")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		store := openStore(ctx)
		defer store.Close()

		var d *daemon.Daemon
		indicators := docsync.MultiIndicator{docsync.LogIndicator{Logger: logging.Component("indicator")}}

		var server *dashboard.Server
		if !noDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Port:      cfg.Dashboard.Port,
				Source:    store,
				Requester: requestFunc(func(reason string) bool { return d.RequestSync(reason) }),
			})
			indicators = append(indicators, server)
		}

		stack, err := newSyncStack(store, indicators)
		if err != nil {
			return err
		}

		dcfg := daemon.DefaultConfig()
		dcfg.SyncInterval = cfg.Sync.Interval
		dcfg.ProbeInterval = cfg.Sync.ProbeInterval
		dcfg.SettleDelay = cfg.Sync.SettleDelay
		dcfg.RetryErrored = cfg.Sync.RetryErrored
		dcfg.FormTypes = stack.formTypes
		dcfg.Indicator = indicators
		if !noInbox {
			dcfg.InboxDir = cfg.InboxDir
		}

		d, err = daemon.New(store, stack.engine, stack.monitor, dcfg)
		if err != nil {
			return err
		}

		if server != nil {
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					log.Warn().Err(err).Msg("dashboard shutdown")
				}
			}()
			fmt.Printf("Dashboard:  http://%s\n", server.GetAddr())
		}

		fmt.Printf("Endpoint:   %s\n", stack.client.Endpoint())
		if dcfg.InboxDir != "" {
			fmt.Printf("Inbox:      %s\n", dcfg.InboxDir)
		}
		fmt.Printf("Interval:   %s\n", dcfg.SyncInterval)
		fmt.Println(ui.MutedStyle.Render("Press Ctrl+C to stop..."))

		if err := d.Start(ctx); err != nil {
			return err
		}

		fmt.Println(ui.MutedStyle.Render("Daemon stopped"))
		return nil
	},
}

func init() {
	daemonCmd.Flags().Int("port", 8080, "dashboard port")
	daemonCmd.Flags().Duration("interval", 0, "periodic sync interval (default from config, 5m)")
	daemonCmd.Flags().String("inbox", "", "inbox directory for record files (default <data-dir>/inbox)")
	daemonCmd.Flags().Bool("no-dashboard", false, "do not serve the dashboard")
	daemonCmd.Flags().Bool("no-inbox", false, "do not watch the inbox directory")

	bindFlag(daemonCmd, "dashboard.port", "port")
	bindFlag(daemonCmd, "sync.interval", "interval")
	bindFlag(daemonCmd, "inbox_dir", "inbox")

	rootCmd.AddCommand(daemonCmd)
}
