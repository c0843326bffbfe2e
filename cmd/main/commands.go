package main

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"payngo/scraper/internal/config"
	"payngo/scraper/internal/container"
	"payngo/scraper/internal/domain/task"
	"payngo/scraper/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

type app struct {
	container *container.Container
	logs      io.Closer
}

func (a *app) Close() {
	if err := a.container.Close(); err != nil {
		log.Warnf("⚠️ Shutdown: %v", err)
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// newApp loads the configuration and builds the container. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logs, err := logging.Setup(cfg.Log, cfg.Common.ErrorLog)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Info("Configuration loaded successfully")

	c, err := container.New(ctx, cfg)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	c.ServeMetrics(ctx)

	return &app{container: c, logs: logs}, nil
}

func appFrom(cmd *cobra.Command) *app {
	if cmd == nil || cmd.Context() == nil {
		return nil
	}
	a, _ := cmd.Context().Value(appKey).(*app)
	return a
}

// execute runs cmd and closes the app built for it. Cobra skips post-run hooks when RunE fails, so the close
// happens here.
func execute(ctx context.Context, cmd *cobra.Command) error {
	executed, err := cmd.ExecuteContextC(ctx)
	if a := appFrom(executed); a != nil {
		a.Close()
	}
	return err
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Scrapes Payngo catalog categories into product files and reports them to the task service.",
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml when present)")

	cmd.AddCommand(newRunCmd(), newConsumeCmd(), newEnqueueCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the categories of a task file and report completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := task.LoadScrapeTask(taskFile)
			if err != nil {
				return err
			}

			log.Info("Starting Payngo scraper...")
			if err := appFrom(cmd).container.RunTask(cmd.Context(), t); err != nil {
				return err
			}
			log.Info("Application finished successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&taskFile, "task", "", "path to a scrape task JSON document")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run scrape tasks from the Redis stream until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return appFrom(cmd).container.Consume(cmd.Context())
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	var taskFile string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a scrape task file to the Redis stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := task.LoadScrapeTask(taskFile)
			if err != nil {
				return err
			}

			id, err := appFrom(cmd).container.Enqueue(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskFile, "task", "", "path to a scrape task JSON document")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}
