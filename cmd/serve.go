package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bottle/internal/apihandlers"
)

const shutdownTimeout = 30 * time.Second

var (
	serveAddr string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job registries",
	Long: `Starts the job registries and an HTTP server to trigger and observe jobs.
With redis.address set it also consumes trigger tasks and runs the schedules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config
		if !cmd.Flags().Changed("addr") {
			serveAddr = cfg.Server.Addr
		}
		if !cmd.Flags().Changed("port") {
			servePort = cfg.Server.Port
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		appInstance.JobService.Start(ctx)
		defer appInstance.JobService.Wait()

		stopQueue := func() {}
		if cfg.Redis.Address != "" {
			stopQueue, err = startQueue(appInstance)
			if err != nil {
				cancel()
				return err
			}
		}

		router := gin.Default()
		apihandlers.NewAPIHandler(appInstance).RegisterRoutes(router)

		listenAddr := fmt.Sprintf("%s:%d", serveAddr, servePort)
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		serveErr := make(chan error, 1)
		go func() {
			log.Infof("Starting bottle API server on http://%s", listenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		var runErr error
		select {
		case <-quit:
			log.Info("Shutting down server...")
		case err := <-serveErr:
			runErr = fmt.Errorf("failed to run API server: %w", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Server forced to shutdown: %v", err)
		}
		stopQueue()
		cancel()
		log.Info("Server shutdown complete")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1", "Address to listen on (e.g., '0.0.0.0' for all interfaces)")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
}
