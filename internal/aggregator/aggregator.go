package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atikulmunna/sitekeeper/internal/model"
)

const (
	rateWindow = 5 * time.Second
	topPaths   = 5
)

// PathCount is a request path and how often it was seen.
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// Stats holds a point-in-time snapshot of access-log metrics.
type Stats struct {
	Uptime        string           `json:"uptime"`
	TotalRequests int64            `json:"total_requests"`
	Unparsed      int64            `json:"unparsed"`
	RPS           float64          `json:"rps"`
	MethodCounts  map[string]int64 `json:"method_counts"`
	TopPaths      []PathCount      `json:"top_paths"`
	DroppedLines  int64            `json:"dropped_lines"`
	FilesWatched  int              `json:"files_watched"`
}

// Aggregator subscribes to the Hub and computes time-windowed metrics.
type Aggregator struct {
	mu           sync.RWMutex
	startTime    time.Time
	total        int64
	unparsed     int64
	methodCounts map[string]int64
	pathCounts   map[string]int64
	window       []time.Time // arrival times inside rateWindow
	dropped      func() int64
	fileCount    func() int
	entries      <-chan model.AccessEntry
}

// New creates an Aggregator that reads from a Hub subscriber channel.
// droppedFn and fileCountFn provide live values from Hub and Watcher respectively.
func New(entries <-chan model.AccessEntry, droppedFn func() int64, fileCountFn func() int) *Aggregator {
	return &Aggregator{
		startTime:    time.Now(),
		methodCounts: make(map[string]int64),
		pathCounts:   make(map[string]int64),
		dropped:      droppedFn,
		fileCount:    fileCountFn,
		entries:      entries,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	methods := make(map[string]int64, len(a.methodCounts))
	for k, v := range a.methodCounts {
		methods[k] = v
	}

	paths := make([]PathCount, 0, len(a.pathCounts))
	for p, n := range a.pathCounts {
		paths = append(paths, PathCount{Path: p, Count: n})
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Count != paths[j].Count {
			return paths[i].Count > paths[j].Count
		}
		return paths[i].Path < paths[j].Path
	})
	if len(paths) > topPaths {
		paths = paths[:topPaths]
	}

	cutoff := time.Now().Add(-rateWindow)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	return Stats{
		Uptime:        time.Since(a.startTime).Truncate(time.Second).String(),
		TotalRequests: a.total,
		Unparsed:      a.unparsed,
		RPS:           float64(recent) / rateWindow.Seconds(),
		MethodCounts:  methods,
		TopPaths:      paths,
		DroppedLines:  a.dropped(),
		FilesWatched:  a.fileCount(),
	}
}

// Start consumes entries until the context is cancelled or the channel closes.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-a.entries:
			if !ok {
				return
			}
			a.record(entry)
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *Aggregator) record(entry model.AccessEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Method == "" {
		a.unparsed++
		return
	}
	a.total++
	a.methodCounts[entry.Method]++
	a.pathCounts[entry.Path]++
	a.window = append(a.window, time.Now())
}

// prune drops arrival times older than the rate window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}
