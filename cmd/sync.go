package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bottle/internal/clix"
	"bottle/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync <community> <feed-id> | sync <feed-id>@<community>",
	Short: "Sync one feed in the foreground",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		id, err := clix.ParseFeedArgs(args)
		if err != nil {
			return err
		}
		if queueOnly {
			if _, err := appInstance.Store.GetFeed(cmd.Context(), id); err != nil {
				return err
			}
			return enqueue(cmd.Context(), appInstance, cmd.OutOrStdout(), "feed "+id.String(), func(ctx context.Context, c store.JobClient) error {
				return c.EnqueueFeedSync(ctx, id)
			})
		}

		trigger := func(ctx context.Context) error {
			_, err := appInstance.JobService.TriggerFeedSync(ctx, id)
			return err
		}
		poll := func() progress {
			v := appInstance.JobService.FeedState(id)
			return progress{phase: v.State, line: fmt.Sprintf("feed %s: %d new posts", id, v.Fetched), err: v.Error}
		}
		return runForeground(cmd.Context(), appInstance, cmd.OutOrStdout(), trigger, poll)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&queueOnly, "queue", false, "Enqueue the sync for a running worker instead of running it here")
	rootCmd.AddCommand(syncCmd)
}
