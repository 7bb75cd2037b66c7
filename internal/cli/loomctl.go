// Package cli implements the loomctl command-line surface built on
// cobra and viper: validate, run, and serve.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomwrk/loom/internal/config"
	"github.com/loomwrk/loom/internal/job"
	"github.com/loomwrk/loom/internal/job/httpjob"
	"github.com/loomwrk/loom/internal/job/logjob"
	"github.com/loomwrk/loom/internal/job/shelljob"
	"github.com/loomwrk/loom/internal/runner"
	"github.com/loomwrk/loom/internal/statusapi"
	"github.com/loomwrk/loom/internal/summary"
	"github.com/loomwrk/loom/internal/tracker"
	"github.com/loomwrk/loom/internal/watch"
	"github.com/loomwrk/loom/internal/workflow"
	"github.com/loomwrk/loom/internal/workflowctx"
)

var (
	cfgFile string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "loomctl",
	Short: "DAG workflow engine",
	Long:  "loomctl builds, validates, runs, and serves status for DAG-based workflows with retry, timeout, dynamic routing, and bounded parallelism.",
}

var validateCmd = &cobra.Command{
	Use:   "validate [definition-file]",
	Short: "Validate a workflow YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run [definition-file]",
	Short: "Execute a single workflow definition to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch a workflow directory and serve the status API",
	RunE:  runServe,
}

func init() {
	cobra.OnInitialize(initLogger)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.loom.yaml)")
	rootCmd.AddCommand(validateCmd, runCmd, serveCmd)
}

func initLogger() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		panic(err)
	}
}

func registerBuiltinJobs(registry *job.Registry) {
	registry.Register(httpjob.Class, httpjob.New)
	registry.Register(shelljob.Class, shelljob.New)
	registry.Register(logjob.Class, logjob.New(logger))
}

func buildTracker(cfg config.TrackerConfig) workflowctx.Tracker {
	var trackers []workflowctx.Tracker
	switch cfg.Backend {
	case "redis":
		trackers = append(trackers, tracker.NewRedis(tracker.RedisConfig{
			Address: cfg.RedisAddress, Password: cfg.RedisPassword, DB: cfg.RedisDB, TTL: cfg.RedisTTL,
		}, logger))
	case "kafka":
		trackers = append(trackers, tracker.NewKafka(tracker.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger))
	case "both":
		trackers = append(trackers,
			tracker.NewRedis(tracker.RedisConfig{Address: cfg.RedisAddress, Password: cfg.RedisPassword, DB: cfg.RedisDB, TTL: cfg.RedisTTL}, logger),
			tracker.NewKafka(tracker.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, logger),
		)
	}
	if len(trackers) == 0 {
		return workflowctx.NoOpTracker{}
	}
	return tracker.NewMulti(trackers...)
}

func buildSummaryCallback(cfg config.SummaryConfig) (summary.Callback, error) {
	switch cfg.Backend {
	case "jsonfile":
		return summary.NewJSONFile(cfg.JSONDir)
	case "postgres":
		return summary.NewPostgres(cfg.PostgresDSN)
	case "mysql":
		return summary.NewMySQL(cfg.MySQLDSN)
	default:
		return nil, nil
	}
}

func buildRunner(cfg *config.Config) runner.Runner {
	if cfg.Runner == "outofprocess" && cfg.WorkerPath != "" {
		return runner.NewOutOfProcess(cfg.WorkerPath)
	}
	return runner.NewInline()
}

func runValidate(cmd *cobra.Command, args []string) error {
	def, err := workflow.LoadDefinitionFromFile(args[0])
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Printf("workflow %q is valid: %d step(s)\n", def.Name, len(def.Steps))
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	def, err := workflow.LoadDefinitionFromFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	registry := job.NewRegistry()
	registerBuiltinJobs(registry)

	wfTracker := buildTracker(cfg.Tracker)
	wf, err := workflow.Build(def, registry, wfTracker)
	if err != nil {
		return fmt.Errorf("failed to build workflow: %w", err)
	}

	cb, err := buildSummaryCallback(cfg.Summary)
	if err != nil {
		return fmt.Errorf("failed to initialize summary sink: %w", err)
	}
	if cb != nil {
		wf.SetSummaryCallback(cb)
	}

	wf.SetRunner(buildRunner(cfg)).SetMaxParallelism(cfg.MaxParallelism).SetLogger(logger)

	fmt.Printf("executing workflow %q (id=%s)\n", def.Name, wf.Context().WorkflowID())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := wf.Execute(ctx)
	if err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}

	fmt.Printf("workflow completed: status=%s steps_with_output=%d\n", wf.Context().Status(), len(results))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	registry := job.NewRegistry()
	registerBuiltinJobs(registry)

	store := statusapi.NewMemoryStore()

	w := watch.New(logger, cfg.WorkflowDir, func(path string, def *workflow.Definition) {
		logger.Info("definition available", zap.String("path", path), zap.String("name", def.Name))
	}, func(path string) {
		logger.Info("definition removed", zap.String("path", path))
	})
	if err := os.MkdirAll(cfg.WorkflowDir, 0o755); err != nil {
		return fmt.Errorf("failed to create workflow dir: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start workflow directory watcher: %w", err)
	}
	defer w.Stop()

	server := statusapi.NewServer(logger, store, cfg.StatusAPIPort)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("status API server failed", zap.Error(err))
		}
	}()

	logger.Info("loomctl serve started",
		zap.Int("status_api_port", cfg.StatusAPIPort),
		zap.String("workflow_dir", cfg.WorkflowDir))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("shutting down loomctl serve")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(ctx)
}

// Execute runs the loomctl root command.
func Execute() error {
	return rootCmd.Execute()
}
