// Command loadtest drives the documentation search API with concurrent
// queries, a share of them deliberately misspelled to exercise fuzzy
// matching and a share sent to the suggestion endpoint, and reports
// throughput, latency percentiles and zero-result rates per endpoint.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-queries queries.txt]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

var defaultQueries = []string{
	"ball",
	"paddle",
	"brick",
	"launch",
	"reset",
	"score",
	"physics",
	"velocity",
	"game manager",
	"lives",
	"collision",
	"speed",
	"generate bricks",
	"player input",
	"move",
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.Limit, "limit", 10, "results requested per query")
	flag.IntVar(&cfg.SuggestEvery, "suggest-every", 5, "send every Nth request to /api/v1/suggest (0 disables)")
	queriesPath := flag.String("queries", "", "file with one query per line (default: built-in documentation queries)")
	typos := flag.Bool("typos", true, "add a misspelled variant of every query")
	flag.Parse()

	cfg.Queries = defaultQueries
	if *queriesPath != "" {
		queries, err := readQueryFile(*queriesPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Queries = queries
	}
	if *typos {
		cfg.Queries = withTypos(cfg.Queries)
	}

	fmt.Println("=== Documentation Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n\n", len(cfg.Queries))

	results := run(cfg)
	summaries := results.Summaries(cfg.Duration)
	printReport(os.Stdout, summaries)

	if total(summaries) == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func readQueryFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries: %w", err)
	}
	defer f.Close()
	queries, err := loadQueries(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no usable queries in %s", path)
	}
	return queries, nil
}

// loadQueries reads one query per line, skipping blanks and # comments.
func loadQueries(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// withTypos appends, for every query of four or more runes, a copy with its
// last rune doubled, which stays within the default edit distance.
func withTypos(queries []string) []string {
	out := make([]string, 0, len(queries)*2)
	out = append(out, queries...)
	for _, q := range queries {
		r := []rune(q)
		if len(r) < 4 {
			continue
		}
		out = append(out, q+string(r[len(r)-1]))
	}
	return out
}

// prefixOf is the suggestion prefix sent for a query: its first word, cut
// to at most three runes.
func prefixOf(query string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	r := []rune(word)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}
