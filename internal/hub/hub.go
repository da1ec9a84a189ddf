package hub

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/atikulmunna/sitekeeper/internal/model"
	"github.com/atikulmunna/sitekeeper/internal/parser"
)

const subscriberBuffer = 1024

// Filter decides whether a subscriber wants an entry. A nil Filter takes all.
type Filter func(model.AccessEntry) bool

// Requests keeps only lines the parser recognised as requests.
func Requests(e model.AccessEntry) bool {
	return e.Method != ""
}

// Methods keeps requests whose method is in the set. An empty set keeps all.
func Methods(set map[string]bool) Filter {
	if len(set) == 0 {
		return nil
	}
	return func(e model.AccessEntry) bool { return set[e.Method] }
}

// SourceCount tallies what one log file has produced so far.
type SourceCount struct {
	Source   string `json:"source"`
	Lines    int64  `json:"lines"`
	Unparsed int64  `json:"unparsed"`
}

type subscriber struct {
	ch     chan model.AccessEntry
	filter Filter
}

// Hub parses raw access lines and fans the entries out to subscribers,
// keeping per-source line counts along the way.
type Hub struct {
	parser parser.Parser
	input  <-chan model.RawLine

	mu          sync.Mutex
	subscribers []subscriber
	sources     map[string]*SourceCount
	dropped     int64
}

// New creates a Hub that reads from the input channel and parses with the given parser.
func New(input <-chan model.RawLine, p parser.Parser) *Hub {
	return &Hub{
		parser:  p,
		input:   input,
		sources: make(map[string]*SourceCount),
	}
}

// Subscribe returns a buffered channel receiving every entry the filter
// accepts. Subscribe before Start.
func (h *Hub) Subscribe(filter Filter) <-chan model.AccessEntry {
	ch := make(chan model.AccessEntry, subscriberBuffer)
	h.mu.Lock()
	h.subscribers = append(h.subscribers, subscriber{ch: ch, filter: filter})
	h.mu.Unlock()
	return ch
}

// Dropped returns the total number of entries lost to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Sources returns per-file counts ordered by source name.
func (h *Hub) Sources() []SourceCount {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SourceCount, 0, len(h.sources))
	for _, sc := range h.sources {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Start reads, parses and broadcasts until the context is cancelled or the
// input channel is closed. Subscriber channels are closed on return.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-h.input:
			if !ok {
				return
			}
			h.broadcast(h.parser.Parse(raw.Text, raw.Source))
		}
	}
}

// broadcast never blocks: a full subscriber loses the entry.
func (h *Hub) broadcast(entry model.AccessEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sc := h.sources[entry.Source]
	if sc == nil {
		sc = &SourceCount{Source: entry.Source}
		h.sources[entry.Source] = sc
	}
	sc.Lines++
	if !Requests(entry) {
		sc.Unparsed++
	}

	for _, sub := range h.subscribers {
		if sub.filter != nil && !sub.filter(entry) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			h.dropped++
			if h.dropped == 1 || h.dropped%subscriberBuffer == 0 {
				log.Printf("hub: dropped entry for slow consumer (total dropped: %d)", h.dropped)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		close(sub.ch)
	}
	h.subscribers = nil
}
