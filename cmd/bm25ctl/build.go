package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/postgres"
)

type buildFlags struct {
	input     string
	format    string
	fromPG    bool
	output    string
	notify    bool
	k1        float64
	b         float64
	lowercase bool
}

func buildCmd(g *globals) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index file from a corpus",
		Long: `Build an index file from a corpus and save it atomically.

The corpus is read from --input (JSON Lines with {"id": ..., "text": ...}
records, or plain text with one document per line) or, with --postgres,
from the configured corpus query. Ranking parameters default to the
config file and may be overridden with flags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := bm25.Params{
				K1:        g.cfg.Ranking.K1,
				B:         g.cfg.Ranking.B,
				Lowercase: g.cfg.Ranking.Lowercase,
			}
			if cmd.Flags().Changed("k1") {
				params.K1 = f.k1
			}
			if cmd.Flags().Changed("b") {
				params.B = f.b
			}
			if cmd.Flags().Changed("lowercase") {
				params.Lowercase = f.lowercase
			}
			return runBuild(cmd, g, f, params)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Corpus file to index")
	cmd.Flags().StringVar(&f.format, "format", string(corpus.FormatAuto), "Corpus format: jsonl, text or auto (by extension)")
	cmd.Flags().BoolVar(&f.fromPG, "postgres", false, "Read the corpus from PostgreSQL using the configured corpus query")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Index file to write (default: configured index path)")
	cmd.Flags().BoolVar(&f.notify, "notify", false, "Publish a reload notification to Kafka after saving")
	cmd.Flags().Float64Var(&f.k1, "k1", 0, "Term frequency saturation (default from config)")
	cmd.Flags().Float64Var(&f.b, "b", 0, "Length normalization (default from config)")
	cmd.Flags().BoolVar(&f.lowercase, "lowercase", false, "Fold ASCII letters to lower case (default from config)")
	cmd.MarkFlagsMutuallyExclusive("input", "postgres")
	cmd.MarkFlagsOneRequired("input", "postgres")
	return cmd
}

func runBuild(cmd *cobra.Command, g *globals, f *buildFlags, params bm25.Params) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	docs, err := loadCorpus(ctx, g, f)
	if err != nil {
		return err
	}

	opts, err := g.engineOptions()
	if err != nil {
		return err
	}
	engine, err := bm25.New(params, opts...)
	if err != nil {
		return err
	}
	if err := engine.Build(docs.Docs, docs.IDs); err != nil {
		return err
	}

	path := g.indexPath(f.output)
	if err := engine.Save(path); err != nil {
		return err
	}
	stats := engine.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents, %d terms in %v\n",
		stats.Documents, stats.Terms, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (fingerprint %s)\n", path, stats.Fingerprint)

	if f.notify {
		return notify(ctx, g, path, stats)
	}
	return nil
}

func loadCorpus(ctx context.Context, g *globals, f *buildFlags) (*corpus.Corpus, error) {
	if f.fromPG {
		client, err := postgres.New(ctx, g.cfg.Postgres)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		return corpus.ReadPostgres(ctx, client, g.cfg.Postgres.CorpusQuery)
	}
	format, err := corpus.ParseFormat(f.format)
	if err != nil {
		return nil, err
	}
	return corpus.ReadFile(f.input, format)
}

func notify(ctx context.Context, g *globals, path string, stats bm25.Stats) error {
	if len(g.cfg.Kafka.Brokers) == 0 || g.cfg.Kafka.Topics.IndexReload == "" {
		return fmt.Errorf("%w: --notify needs kafka brokers and an index reload topic", apperrors.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	producer := kafka.NewProducer(g.cfg.Kafka, g.cfg.Kafka.Topics.IndexReload)
	defer producer.Close()

	return producer.Publish(ctx, kafka.Event{
		Key: filepath.Base(path),
		Value: reloader.Notification{
			Path:        abs,
			Fingerprint: stats.Fingerprint,
			Documents:   stats.Documents,
			Terms:       stats.Terms,
			BuiltAt:     time.Now().UTC(),
		},
	})
}
