package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bottle/internal/clix"
	"bottle/internal/models"
	"bottle/internal/services"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Manage feeds",
}

var addFeedCmd = &cobra.Command{
	Use:   "add",
	Short: "Subscribe to a feed",
	Example: `  bottle feed add --community yandere --name landscapes --params '{"kind":"tags","tags":"landscape"}'
  bottle feed add --community pixiv --name bookmarks --params '{"kind":"bookmarks","user_id":11}' --first-fetch-limit 200`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		community, _ := flags.GetString("community")
		name, _ := flags.GetString("name")
		watching, _ := flags.GetBool("watching")
		params, err := clix.ParseJSON(flags, "params")
		if err != nil {
			return err
		}
		limit, err := clix.ParseOptionalPositive(flags, "first-fetch-limit")
		if err != nil {
			return err
		}

		feed, err := appInstance.FeedService.AddFeed(cmd.Context(), services.AddFeedParams{
			Community:       models.Community(community),
			Name:            name,
			Params:          params,
			Watching:        watching,
			FirstFetchLimit: limit,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s feed %s (%s)\n", color.GreenString("Added"), feed.Key(), feed.Name)
		return nil
	},
}

var listFeedsCmd = &cobra.Command{
	Use:   "list",
	Short: "List feeds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		community, err := clix.ParseCommunity(cmd.Flags())
		if err != nil {
			return err
		}
		feeds, err := appInstance.FeedService.ListFeeds(cmd.Context(), community)
		if err != nil {
			return fmt.Errorf("error listing feeds: %w", err)
		}
		if len(feeds) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No feeds found.")
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Key", "Name", "Params", "Watching", "Reached End", "Created"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, f := range feeds {
			table.Append([]string{
				f.Key().String(),
				f.Name,
				string(f.Params),
				strconv.FormatBool(f.Watching),
				strconv.FormatBool(f.ReachedEnd),
				f.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		table.Render()
		return nil
	},
}

var feedWorksCmd = &cobra.Command{
	Use:   "works <id>@<community>",
	Short: "List the works of a feed, newest first",
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
		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}
		works, err := appInstance.FeedService.ListWorks(cmd.Context(), id, page.Limit, page.Offset)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Post", "User", "Title", "Images", "Thumbnail"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, w := range works {
			thumb := "-"
			if w.ThumbnailPath != nil {
				thumb = *w.ThumbnailPath
			}
			table.Append([]string{w.PostID, w.UserID, w.Title, strconv.Itoa(w.ImageCount), thumb})
		}
		table.Render()
		return nil
	},
}

var feedHistoryCmd = &cobra.Command{
	Use:   "history <id>@<community>",
	Short: "Show the saved pages of a feed",
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
		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := appInstance.FeedService.History(cmd.Context(), id, limit)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "Top", "Bottom", "Count", "Saved At"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, h := range rows {
			table.Append([]string{
				strconv.FormatInt(h.ID, 10),
				cursorString(h.Top),
				cursorString(h.Bottom),
				strconv.Itoa(h.Count),
				h.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

func cursorString(c *models.Cursor) string {
	if c == nil {
		return "-"
	}
	return c.Value
}

func init() {
	addFeedCmd.Flags().String("community", "", "community: pixiv, twitter, yandere or panda")
	addFeedCmd.Flags().String("name", "", "display name of the feed")
	addFeedCmd.Flags().String("params", "", "community specific feed params as JSON")
	addFeedCmd.Flags().Bool("watching", false, "mark the feed as watched")
	addFeedCmd.Flags().Int("first-fetch-limit", 0, "stop the first sync after this many posts")
	_ = addFeedCmd.MarkFlagRequired("community")
	_ = addFeedCmd.MarkFlagRequired("name")
	_ = addFeedCmd.MarkFlagRequired("params")

	listFeedsCmd.Flags().String("community", "", "only list feeds of this community")

	feedWorksCmd.Flags().IntP("limit", "n", 20, "maximum number of works")
	feedWorksCmd.Flags().Int("offset", 0, "works to skip")

	feedHistoryCmd.Flags().IntP("limit", "n", 20, "maximum number of pages")

	feedCmd.AddCommand(addFeedCmd, listFeedsCmd, feedWorksCmd, feedHistoryCmd)
	rootCmd.AddCommand(feedCmd)
}
