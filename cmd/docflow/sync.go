package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	docsync "github.com/pacetech/docflow/internal/docflow/sync"
	"github.com/pacetech/docflow/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Submit every pending form to the sync endpoint, one at a time.

Each form ends the pass as synced (remote id and document URL recorded) or
error (reason recorded, retried on the next pass). A pass is skipped when the
endpoint is unreachable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		stack, err := newSyncStack(store, docsync.LogIndicator{Logger: log})
		if err != nil {
			return err
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		online, _ := stack.monitor.Probe(probeCtx)
		cancel()
		if !online {
			fmt.Printf("%s %s is unreachable\n", ui.Indicator(docsync.IndicatorOffline), stack.client.Endpoint())
		}

		res, err := stack.engine.SyncNow(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("sync pass failed: %w", err)
		}

		fmt.Println(ui.Result(res))
		if res.Requeued > 0 {
			fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("%d errored form(s) retried", res.Requeued)))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("retry-errored", true, "retry forms that failed on earlier passes")
	syncCmd.Flags().Int("max-attempts", 0, "stop retrying a form after this many failures (0 = never)")
	bindFlag(syncCmd, "sync.retry_errored", "retry-errored")
	bindFlag(syncCmd, "sync.max_attempts", "max-attempts")

	rootCmd.AddCommand(syncCmd)
}
