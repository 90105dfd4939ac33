package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"inquest/internal/config"
	"inquest/internal/events"
	"inquest/internal/graph"
	"inquest/internal/index"
	"inquest/internal/investigation"
	"inquest/internal/logging"
	"inquest/internal/pathway"
	"inquest/internal/pipeline"
	"inquest/internal/project"
	"inquest/internal/strategos"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "inquest",
	Short: "inquest - research orchestration engine",
	Long: `inquest drives a multi-phase investigation pipeline over a fleet of
externally hosted workers. Given a research topic it plans sub-questions,
classifies evidence into a taxonomy, runs each piece through a typed
investigation pathway, applies a deterministic confidence calculus, and
assembles a validated knowledge graph.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// runCmd drives a full pipeline for one topic
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full research pipeline for a topic",
	Long: `Creates a project for the topic and drives it through all five phases:
planning, classification, investigation, adjudication, synthesis.

Example:
  inquest run --topic "lead levels in municipal water"`,
	RunE: runPipeline,
}

// validateCmd runs the graph validator standalone
var validateCmd = &cobra.Command{
	Use:   "validate [graph.json]",
	Short: "Validate a knowledge-graph artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// pathwaysCmd lists the pathway catalog
var pathwaysCmd = &cobra.Command{
	Use:   "pathways",
	Short: "List the investigation pathway catalog",
	RunE:  runPathways,
}

// projectsCmd lists known projects
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects, newest first",
	RunE:  runProjects,
}

var runTopic string

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <data dir>/config.yaml)")

	runCmd.Flags().StringVar(&runTopic, "topic", "", "research topic (required)")
	_ = runCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(pathwaysCmd)
	rootCmd.AddCommand(projectsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config path and initializes category logging.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.Default().Paths.DataDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Paths.DataDir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projects, err := project.NewStore(cfg.Paths.ProjectsDir)
	if err != nil {
		return err
	}
	idx, err := index.Open(cfg.Paths.DataDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	gateway := strategos.NewClient(strategos.Config{
		BaseURL:      cfg.Strategos.BaseURL,
		PollInterval: config.Duration(cfg.Strategos.PollInterval, 5*time.Second),
		PollTimeout:  config.Duration(cfg.Strategos.PollTimeout, 30*time.Second),
		SpawnRetries: cfg.Strategos.SpawnRetries,
		RetryBase:    config.Duration(cfg.Strategos.RetryBase, 3*time.Second),
	})

	catalog := pathway.NewCatalog(cfg.Paths.PathwaysDir)
	emitter := events.LogEmitter{}
	executor := pathway.NewExecutor(gateway, emitter, pathway.ExecutorConfig{
		LevelTimeout: config.Duration(cfg.Pipeline.LevelTimeout, 15*time.Minute),
	})
	orchestrator := investigation.NewOrchestrator(catalog, executor, emitter, investigation.Config{
		BatchSize:  cfg.Pipeline.MaxConcurrentPathways,
		BatchDelay: config.Duration(cfg.Pipeline.BatchDelay, 2*time.Second),
	})
	adjudicator := pipeline.NewAdjudicator(catalog, executor, idx)

	p := pipeline.New(gateway, projects, orchestrator, adjudicator, idx, emitter, pipeline.Config{
		PlanningTimeout:       config.Duration(cfg.Pipeline.PlanningTimeout, 45*time.Minute),
		ClassificationTimeout: config.Duration(cfg.Pipeline.ClassificationTimeout, 30*time.Minute),
		SynthesisTimeout:      config.Duration(cfg.Pipeline.SynthesisTimeout, 45*time.Minute),
	})

	proj, err := projects.Create(runTopic)
	if err != nil {
		return err
	}
	logger.Info("project created", zap.String("id", proj.ID), zap.String("topic", proj.Topic))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := p.Run(ctx, proj.ID); err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	fmt.Printf("Project %s complete. Artifacts in %s\n", proj.ID, projects.Dir(proj.ID))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	res := graph.ValidateJSON(data)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !res.Valid {
		return fmt.Errorf("graph invalid: %d errors", len(res.Errors))
	}
	return nil
}

func runPathways(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog := pathway.NewCatalog(cfg.Paths.PathwaysDir)
	ids, err := catalog.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Printf("No pathway definitions in %s\n", cfg.Paths.PathwaysDir)
		return nil
	}
	for _, id := range ids {
		pw, err := catalog.Get(id)
		if err != nil {
			fmt.Printf("%-8s (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%-8s %d levels\n", pw.ID, len(pw.Levels))
	}
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	projects, err := project.NewStore(cfg.Paths.ProjectsDir)
	if err != nil {
		return err
	}
	list, err := projects.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No projects.")
		return nil
	}
	for _, p := range list {
		fmt.Printf("%s  %-14s  %s\n", p.ID, p.Status, p.Topic)
	}
	return nil
}
