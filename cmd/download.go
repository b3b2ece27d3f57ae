package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bottle/internal/models"
	"bottle/internal/store"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download media in the foreground",
}

var downloadImagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Download every image that has no local file yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if queueOnly {
			return enqueue(cmd.Context(), appInstance, cmd.OutOrStdout(), "image download", func(ctx context.Context, c store.JobClient) error {
				return c.EnqueueImageDownload(ctx)
			})
		}
		trigger := func(ctx context.Context) error {
			appInstance.JobService.TriggerImageDownload(ctx)
			return nil
		}
		poll := func() progress {
			v := appInstance.JobService.ImageDownloadState()
			return progress{
				phase: v.State,
				line:  fmt.Sprintf("images: %d/%d done, %d failed", v.Success, v.Total, v.Failure),
				err:   v.Error,
			}
		}
		if err := runForeground(cmd.Context(), appInstance, cmd.OutOrStdout(), trigger, poll); err != nil {
			return err
		}
		for _, f := range appInstance.JobService.ImageDownloadState().Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "  failed %s: %s\n", f.URL, f.Error)
		}
		return nil
	},
}

var downloadGalleryCmd = &cobra.Command{
	Use:   "gallery <gid>",
	Short: "Download one panda gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		gid, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || gid <= 0 {
			return fmt.Errorf("%w: invalid gallery id %q", models.ErrInvalidInput, args[0])
		}
		if queueOnly {
			if _, err := appInstance.Store.GetGallery(cmd.Context(), gid); err != nil {
				return err
			}
			return enqueue(cmd.Context(), appInstance, cmd.OutOrStdout(), fmt.Sprintf("gallery %d", gid), func(ctx context.Context, c store.JobClient) error {
				return c.EnqueueGalleryDownload(ctx, gid)
			})
		}

		trigger := func(ctx context.Context) error {
			_, err := appInstance.JobService.TriggerGalleryDownload(ctx, gid)
			return err
		}
		poll := func() progress {
			v := appInstance.JobService.GalleryState(gid)
			line := fmt.Sprintf("gallery %d %q: %d/%d images, %d failed", gid, v.Title, v.SuccessImages, v.TotalImages, v.FailureImages)
			if !v.MetadataFetched && v.TotalPages > 0 {
				line = fmt.Sprintf("gallery %d %q: preview pages %d/%d", gid, v.Title, v.SuccessPages, v.TotalPages)
			}
			return progress{phase: v.State, line: line, err: v.Error}
		}
		err = runForeground(cmd.Context(), appInstance, cmd.OutOrStdout(), trigger, poll)
		if errors.Is(err, models.ErrAlreadyExists) {
			fmt.Fprintf(cmd.OutOrStdout(), "Gallery %d is already downloaded.\n", gid)
			return nil
		}
		return err
	},
}

func init() {
	downloadCmd.PersistentFlags().BoolVar(&queueOnly, "queue", false, "Enqueue the download for a running worker instead of running it here")
	downloadCmd.AddCommand(downloadImagesCmd)
	downloadCmd.AddCommand(downloadGalleryCmd)
	rootCmd.AddCommand(downloadCmd)
}
