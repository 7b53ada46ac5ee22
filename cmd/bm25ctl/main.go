// Command bm25ctl builds, inspects and queries BM25 index files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/logger"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals are the flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "bm25ctl",
		Short:         "Build and query BM25 index files",
		Long:          `bm25ctl builds BM25 index files from JSONL, plain text or PostgreSQL corpora and queries them offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if g.logLevel != "" {
				cfg.Logging.Level = g.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
			g.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(buildCmd(g))
	cmd.AddCommand(searchCmd(g))
	cmd.AddCommand(scoresCmd(g))
	cmd.AddCommand(statsCmd(g))
	cmd.AddCommand(loadtestCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

// engineOptions builds the segmenter the config asks for.
func (g *globals) engineOptions() ([]bm25.Option, error) {
	var segOpts []tokenizer.MixedOption
	if g.cfg.Ranking.NormalizeWidth {
		segOpts = append(segOpts, tokenizer.WithWidthFolding())
	}
	seg, err := tokenizer.NewMixed(segOpts...)
	if err != nil {
		return nil, err
	}
	return []bm25.Option{
		bm25.WithSegmenter(seg),
		bm25.WithBuildWorkers(g.cfg.Indexer.BuildWorkers),
	}, nil
}

// indexPath returns the --index flag value or the configured index file.
func (g *globals) indexPath(flag string) string {
	if flag != "" {
		return flag
	}
	return g.cfg.Indexer.IndexPath()
}

func (g *globals) openIndex(path string) (*bm25.Engine, error) {
	// The file names its segmenter, so queries tokenize exactly as the
	// build did whatever ranking.normalizeWidth says now.
	return bm25.Load(g.indexPath(path), bm25.WithBuildWorkers(g.cfg.Indexer.BuildWorkers))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bm25ctl version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
