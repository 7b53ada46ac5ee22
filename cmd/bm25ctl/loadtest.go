package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/handler"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

var defaultLoadQueries = []string{
	"机器学习",
	"深度学习",
	"自然语言处理",
	"人工智能 应用",
	"Python 编程",
	"Python 编程 数据 分析",
	"search engine",
	"中文分词",
	"BM25 排序",
	"数据库 索引",
}

type loadConfig struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	requests    int64
	limit       int
	queries     []string
}

// loadStats collects per-request outcomes from all workers.
type loadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies:   make([]time.Duration, 0, 4096),
		statusCodes: make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statusCodes[status]++
	s.mu.Unlock()
}

func loadtestCmd() *cobra.Command {
	lc := &loadConfig{}
	var queryFile string
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive concurrent search traffic against a running searcher",
		Long: `Send search requests from concurrent workers for a fixed duration
(or request count) and report throughput, latency percentiles, cache hit
ratio and status codes. Queries come from --query, --query-file (one per
line) or a built-in mixed Chinese and English set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lc.concurrency < 1 {
				return fmt.Errorf("%w: concurrency must be positive", apperrors.ErrInvalidInput)
			}
			if queryFile != "" {
				qs, err := readQueries(queryFile)
				if err != nil {
					return err
				}
				lc.queries = append(lc.queries, qs...)
			}
			if len(lc.queries) == 0 {
				lc.queries = defaultLoadQueries
			}
			lc.baseURL = strings.TrimRight(lc.baseURL, "/")

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== BM25 Search Load Test ===")
			fmt.Fprintf(out, "Target:      %s\n", lc.baseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", lc.concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", lc.duration)
			fmt.Fprintf(out, "Queries:     %d unique\n\n", len(lc.queries))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			start := time.Now()
			stats := runLoad(ctx, lc)
			return printLoadReport(out, stats, time.Since(start))
		},
	}
	cmd.Flags().StringVar(&lc.baseURL, "url", "http://localhost:8080", "Base URL of the search service")
	cmd.Flags().IntVarP(&lc.concurrency, "concurrency", "c", 10, "Number of concurrent workers")
	cmd.Flags().DurationVarP(&lc.duration, "duration", "d", 30*time.Second, "Test duration")
	cmd.Flags().Int64Var(&lc.requests, "requests", 0, "Stop after this many requests (0: run for the full duration)")
	cmd.Flags().IntVar(&lc.limit, "limit", 10, "Results requested per search")
	cmd.Flags().StringArrayVarP(&lc.queries, "query", "q", nil, "Query to send (repeatable)")
	cmd.Flags().StringVar(&queryFile, "query-file", "", "File with one query per line")
	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrIO, err)
	}
	defer f.Close()
	var qs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			qs = append(qs, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrIO, path, err)
	}
	return qs, nil
}

func runLoad(ctx context.Context, lc *loadConfig) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        lc.concurrency * 2,
			MaxIdleConnsPerHost: lc.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, lc.duration)
	defer cancel()

	var (
		wg     sync.WaitGroup
		issued atomic.Int64
	)
	for w := range lc.concurrency {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				if lc.requests > 0 && issued.Add(1) > lc.requests {
					return
				}
				query := lc.queries[next%len(lc.queries)]
				next++
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", lc.baseURL, url.QueryEscape(query), lc.limit)
				d, status, hit, err := searchOnce(ctx, client, target)
				if ctx.Err() != nil && err != nil {
					return
				}
				stats.record(d, status, hit, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func searchOnce(ctx context.Context, client *http.Client, target string) (time.Duration, int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, false, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, false, err
	}
	defer resp.Body.Close()

	var body handler.SearchResponse
	if resp.StatusCode == http.StatusOK {
		err = json.NewDecoder(resp.Body).Decode(&body)
	} else {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	return time.Since(start), resp.StatusCode, body.CacheHit, err
}

func printLoadReport(out io.Writer, stats *loadStats, elapsed time.Duration) error {
	total := stats.total.Load()
	errs := stats.errors.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(out, "Errors:          %d\n", errs)
	if total == 0 {
		return fmt.Errorf("%w: no requests completed, is the service running?", apperrors.ErrIO)
	}
	fmt.Fprintf(out, "Error rate:      %.2f%%\n", float64(errs)/float64(total)*100)
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	fmt.Fprintf(out, "Cache hits:      %d (%.1f%%)\n", stats.cacheHits.Load(),
		float64(stats.cacheHits.Load())/float64(total)*100)

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	counts := maps.Clone(stats.statusCodes)
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))
		var sq float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sq += diff * diff
		}

		fmt.Fprintln(out, "\n=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(out, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(out, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(len(latencies)))))
	}

	fmt.Fprintln(out, "\n=== Status Codes ===")
	for _, c := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(out, "  %d: %d\n", c, counts[c])
	}
	return nil
}

// percentile picks the nearest-rank value from sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
