package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/segment"
)

func searchCmd(g *globals) *cobra.Command {
	var (
		indexFile string
		topK      int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Rank documents of an index file for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := g.openIndex(indexFile)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = g.cfg.Ranking.DefaultTopK
			}
			results := engine.Search(strings.Join(args, " "), topK)

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tID\tSCORE")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%.6f\n", i+1, r.ID, r.Score)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&indexFile, "index", "", "Index file (default: configured index path)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func scoresCmd(g *globals) *cobra.Command {
	var (
		indexFile string
		nonZero   bool
	)
	cmd := &cobra.Command{
		Use:   "scores [query...]",
		Short: "Print the score of every document for a query, in build order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := g.openIndex(indexFile)
			if err != nil {
				return err
			}
			view := engine.View()
			scores := view.Scores(strings.Join(args, " "))
			ids := view.IDs()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tID\tSCORE")
			for slot, s := range scores {
				if nonZero && s == 0 {
					continue
				}
				fmt.Fprintf(tw, "%d\t%s\t%.6f\n", slot, ids[slot], s)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&indexFile, "index", "", "Index file (default: configured index path)")
	cmd.Flags().BoolVar(&nonZero, "non-zero", false, "Only print documents with a positive score")
	return cmd
}

func statsCmd(g *globals) *cobra.Command {
	var (
		indexFile  string
		headerOnly bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Describe an index file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.indexPath(indexFile)
			h, err := segment.ReadHeader(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", path)
			fmt.Fprintf(tw, "format version\t%d\n", h.Version)
			fmt.Fprintf(tw, "documents\t%d\n", h.DocCount)
			fmt.Fprintf(tw, "terms\t%d\n", h.TermCount)
			fmt.Fprintf(tw, "payload bytes\t%d\n", h.PayloadLen)
			fmt.Fprintf(tw, "uncompressed bytes\t%d\n", h.RawLen)
			fmt.Fprintf(tw, "checksum\t%x\n", h.Checksum)

			if !headerOnly {
				engine, err := g.openIndex(path)
				if err != nil {
					return err
				}
				s := engine.Stats()
				fmt.Fprintf(tw, "avg doc length\t%.4f\n", s.AvgDocLen)
				fmt.Fprintf(tw, "k1\t%g\n", s.Params.K1)
				fmt.Fprintf(tw, "b\t%g\n", s.Params.B)
				fmt.Fprintf(tw, "lowercase\t%t\n", s.Params.Lowercase)
				fmt.Fprintf(tw, "segmenter\t%s\n", s.Segmenter)
				fmt.Fprintf(tw, "fingerprint\t%s\n", s.Fingerprint)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&indexFile, "index", "", "Index file (default: configured index path)")
	cmd.Flags().BoolVar(&headerOnly, "header-only", false, "Only read the file header")
	return cmd
}
