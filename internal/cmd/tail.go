package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/atikulmunna/sitekeeper/internal/aggregator"
	"github.com/atikulmunna/sitekeeper/internal/hub"
	"github.com/atikulmunna/sitekeeper/internal/output"
	"github.com/atikulmunna/sitekeeper/internal/parser"
	"github.com/atikulmunna/sitekeeper/internal/tailer"
	"github.com/atikulmunna/sitekeeper/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outputFmt      string
	methodFilter   string
	checkpointPath string
	linePattern    string
)

var tailCmd = &cobra.Command{
	Use:   "tail [paths...]",
	Short: "Follow the access log",
	Long: `Follow one or more access logs (or glob patterns) and stream new
requests to the terminal. Defaults to the configured log file. A summary of
what was seen is printed on exit.

Examples:
  sitekeeper tail
  sitekeeper tail "logs/**/*.log" --output json
  sitekeeper tail --method POST,DELETE`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json")
	tailCmd.Flags().StringVarP(&methodFilter, "method", "m", "", "filter by HTTP method (comma-separated: GET,POST)")
	tailCmd.Flags().StringVar(&checkpointPath, "checkpoint", ".sitekeeper-tail.json", "offset checkpoint file (empty disables)")
	tailCmd.Flags().StringVar(&linePattern, "pattern", "", "regex with named groups timestamp, method, path for non-default formats")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nsitekeeper: stopping tail...")
			cancel()
		case <-ctx.Done():
		}
	}()

	patterns := args
	if len(patterns) == 0 {
		patterns = []string{viper.GetString("log_file")}
	}

	p, err := newParser(linePattern)
	if err != nil {
		return err
	}

	w, err := watcher.New(patterns)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if len(w.Paths()) == 0 {
		return fmt.Errorf("no files matched the given patterns: %v", patterns)
	}

	fmt.Fprintf(os.Stderr, "sitekeeper following %d file(s):\n", len(w.Paths()))
	for _, path := range w.Paths() {
		fmt.Fprintf(os.Stderr, "   • %s\n", path)
	}
	fmt.Fprintln(os.Stderr)

	ckpt, err := tailer.NewCheckpoint(checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	t := tailer.New(w, ckpt)
	h := hub.New(t.Lines(), p)
	display := h.Subscribe(hub.Methods(parseMethodFilter(methodFilter)))
	agg := aggregator.New(h.Subscribe(nil), h.Dropped, func() int { return len(w.Paths()) })

	var renderer output.Renderer
	switch strings.ToLower(outputFmt) {
	case "json":
		renderer = output.NewJSONRenderer()
	default:
		renderer = output.NewTextRenderer()
	}

	go w.Start(ctx)
	go t.Start(ctx)
	go h.Start(ctx)
	go agg.Start(ctx)

	for entry := range display {
		if err := renderer.Render(entry); err != nil {
			log.Printf("render error: %v", err)
		}
	}

	printSummary(os.Stderr, agg.Snapshot(), h.Sources())
	return nil
}

func newParser(pattern string) (parser.Parser, error) {
	if pattern == "" {
		return parser.NewAccessParser(), nil
	}
	return parser.NewRegexParser(pattern)
}

func parseMethodFilter(s string) map[string]bool {
	methods := make(map[string]bool)
	if s == "" {
		return methods
	}
	for _, m := range strings.Split(s, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods[m] = true
		}
	}
	return methods
}

func printSummary(w io.Writer, stats aggregator.Stats, sources []hub.SourceCount) {
	fmt.Fprintf(w, "requests: %d (unparsed lines: %d, dropped: %d) over %s\n",
		stats.TotalRequests, stats.Unparsed, stats.DroppedLines, stats.Uptime)

	methods := make([]string, 0, len(stats.MethodCounts))
	for m := range stats.MethodCounts {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(w, "  %-7s %d\n", m, stats.MethodCounts[m])
	}
	for _, pc := range stats.TopPaths {
		fmt.Fprintf(w, "  %6d  %s\n", pc.Count, pc.Path)
	}
	for _, sc := range sources {
		fmt.Fprintf(w, "  %s: %d lines, %d unparsed\n", sc.Source, sc.Lines, sc.Unparsed)
	}
}
