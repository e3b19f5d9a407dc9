package main

import (
	"io"
	"time"

	"repo-analyzer/internal/config"
	"repo-analyzer/internal/github"
	"repo-analyzer/internal/service"
	"repo-analyzer/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options holds the persistent flags shared by every command
type options struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "repo-analyzer",
		Short: "Analyze the public repositories of a GitHub user",
		Long: `repo-analyzer fetches a GitHub user's public repositories, enriches each
one with languages, contributors, commits and README keywords, and folds
them into a summary of languages, stars, activity and repository health.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newAnalyzeCmd(opts))
	return root
}

// load reads the configuration and builds the root logger
func (o *options) load(out io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level := cfg.LogLevel()
	if o.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return cfg, logger, nil
}

// newService wires the GitHub client and worker pool into a service
func newService(cfg *config.Config, logger zerolog.Logger, store service.SnapshotStore) *service.Service {
	githubLogger := logger.With().Str("component", "github").Logger()
	client := github.NewClient(githubOptions(cfg, &githubLogger))
	if !cfg.Authenticated() {
		logger.Warn().Msg("No GitHub token configured, using anonymous rate limits")
	}

	poolLogger := logger.With().Str("component", "pool").Logger()
	pool := worker.NewPool(cfg.Analysis.Workers, poolLogger)

	svcLogger := logger.With().Str("component", "service").Logger()
	return service.New(client, store, pool, &svcLogger)
}

// githubOptions maps the client settings. Config defaults are applied by
// viper, so a zero duration here was set explicitly and means "off".
func githubOptions(cfg *config.Config, logger *zerolog.Logger) github.Options {
	return github.Options{
		Token:           cfg.GitHub.Token,
		BaseURL:         cfg.GitHub.BaseURL,
		Timeout:         cfg.GitHub.Timeout,
		Throttle:        disabledIfZero(cfg.GitHub.Throttle),
		RateLimitBuffer: disabledIfZero(cfg.GitHub.RateLimitBuffer),
		Logger:          logger,
	}
}

func disabledIfZero(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
