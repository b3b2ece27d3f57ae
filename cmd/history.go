package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"bottle/internal/jobs"
)

var (
	historyLimit int
	historyKind  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent job runs",
	Long:  `Displays past feed syncs, image downloads and gallery downloads recorded by the job registries.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		runs, err := appInstance.Recorder.ListRuns(cmd.Context(), historyKind, historyLimit)
		if err != nil {
			return fmt.Errorf("error listing job runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No job runs found.")
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Kind", "Key", "State", "Total", "OK", "Failed", "Started", "Took", "Error"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, r := range runs {
			took, errMsg := "-", ""
			if r.FinishedAt != nil {
				took = r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond).String()
			}
			if r.Error != nil {
				errMsg = *r.Error
			}
			table.Append([]string{
				r.Kind,
				r.JobKey,
				phaseString(jobs.Phase(r.State)),
				strconv.Itoa(r.Total),
				strconv.Itoa(r.Success),
				strconv.Itoa(r.Failure),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				took,
				errMsg,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Only show runs of this kind (feed_sync, image_download, gallery_download)")
	rootCmd.AddCommand(historyCmd)
}
