package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cariboufeeds/curator/internal/config"
	"github.com/cariboufeeds/curator/internal/discover"
	"github.com/cariboufeeds/curator/internal/oracle"
	"github.com/cariboufeeds/curator/internal/pipeline"
	"github.com/cariboufeeds/curator/internal/runlog"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "curator",
	Short:   "Curated, categorized article feeds",
	Long:    "Curator ingests articles from configured sources, deduplicates, scores, categorizes, and maintains bounded per-category feeds across runs.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("curator", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/curator/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, categories, and the scoring provider.")
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		// PersistentPreRunE already loaded and validated the config.
		fmt.Printf("Config OK: %d feeds, %d category rules, fallback %q\n",
			len(cfg.Sources.Feeds), len(cfg.Categories.Rules), cfg.Categories.Fallback)
		return nil
	},
}

// --- run command ---

var noHistory bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: collect -> dedup -> score -> categorize -> merge",
	RunE: func(cmd *cobra.Command, args []string) error {
		var history *runlog.DB
		if !noHistory {
			db, err := openRunLog()
			if err != nil {
				return err
			}
			defer db.Close()
			history = db
		}

		provider := oracle.CreateProvider(
			cfg.Oracle.Provider,
			cfg.Oracle.Model,
			cfg.Oracle.OllamaURL,
			cfg.Oracle.OpenAIModel,
			cfg.Oracle.APIKeyEnv,
			cfg.Oracle.Interests,
		)

		pipe := pipeline.New(cfg, provider, history)
		result := pipe.Run(context.Background(), time.Now().UTC())

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("pipeline run failed")
		}

		fmt.Println("\nPipeline complete.")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&noHistory, "no-history", false, "Skip recording the run in the run log")
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Evaluate candidate feeds from curated OPML lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Discovery.Sources) == 0 {
			return fmt.Errorf("no discovery sources configured (set discovery.sources)")
		}

		provider := oracle.CreateProvider(
			cfg.Oracle.Provider,
			cfg.Oracle.Model,
			cfg.Oracle.OllamaURL,
			cfg.Oracle.OpenAIModel,
			cfg.Oracle.APIKeyEnv,
			cfg.Oracle.Interests,
		)
		if provider == nil {
			return fmt.Errorf("discovery needs a scoring provider")
		}

		d, err := discover.New(cfg, provider)
		if err != nil {
			return err
		}

		report, err := d.Run(context.Background(), time.Now().UTC())
		if err != nil {
			return err
		}

		fmt.Printf("Evaluated %d candidates, %d recommended (min score %d)\n",
			report.Evaluated, len(report.Recommended), report.MinScore)
		for i, c := range report.Recommended {
			if i == 10 {
				fmt.Printf("  ... and %d more\n", len(report.Recommended)-10)
				break
			}
			fmt.Printf("  %5.1f  %s\n         %s\n", c.AverageScore, c.Title, c.URL)
		}
		fmt.Printf("\nFull report: %s\n", d.ReportPath())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run history and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openRunLog()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Run history:")
		fmt.Printf("  Total runs: %d\n", stats.TotalRuns)
		if !stats.LastRun.IsZero() {
			fmt.Printf("  Last run: %s\n", stats.LastRun.Format(time.RFC3339))
		}
		fmt.Printf("  Articles fetched (all time): %d\n", stats.TotalFetched)
		fmt.Printf("  Oracle-scored (all time): %d\n", stats.TotalScored)

		runs, err := db.RecentRuns(5)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  fetched %d, new %d, cache hits %d, failed sources %d\n",
					r.StartedAt.Format("2006-01-02 15:04"), r.Fetched, r.NewArticles,
					r.CacheHits, len(r.FailedSources))
			}
		}
		return nil
	},
}

func openRunLog() (*runlog.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return runlog.Open(filepath.Join(dataDir, "curator.db"))
}
