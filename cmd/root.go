package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bottle/internal/app"
	"bottle/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bottle",
	Short: "Bottle feed archiver",
	Long: `Bottle follows feeds on pixiv, twitter, yande.re and panda, stores every
post it sees and downloads the media into a local or cloud bucket.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := setupLogging(cfg); err != nil {
			return err
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
	},
}

func setupLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.Logging.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stderr)
	return nil
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(migrateCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database and media bucket connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Checking database connectivity (%s)...\n", appInstance.Store.Backend())
		if err := appInstance.Store.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Fprintln(out, "Database connection successful.")

		fmt.Fprintf(out, "Checking media bucket %s...\n", appInstance.Config.Storage.BucketURL)
		if err := appInstance.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Media bucket accessible.")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := appInstance.Store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema applied (%s).\n", appInstance.Store.Backend())
		return nil
	},
}
