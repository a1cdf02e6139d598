package trace

import (
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"hlcrelay/internal/relay"
)

// Recorder is an in-memory, thread-safe event log. It implements
// relay.Observer.
type Recorder struct {
	mu     sync.RWMutex
	events []relay.Event
	byNode map[string][]int // node -> indexes into events
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		byNode: make(map[string][]int),
	}
}

// Observe appends e to the log.
func (r *Recorder) Observe(e relay.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNode[e.Node] = append(r.byNode[e.Node], len(r.events))
	r.events = append(r.events, e)
}

// Events returns a copy of every event in arrival order.
func (r *Recorder) Events() []relay.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]relay.Event(nil), r.events...)
}

// Node returns the events of one node ordered by sequence number.
func (r *Recorder) Node(id string) []relay.Event {
	r.mu.RLock()
	out := make([]relay.Event, 0, len(r.byNode[id]))
	for _, i := range r.byNode[id] {
		out = append(out, r.events[i])
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *Recorder) nodeIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byNode))
	for id := range r.byNode {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind relay.EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// WriteYAML writes events as a YAML document.
func WriteYAML(w io.Writer, events []relay.Event) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Events []relay.Event `yaml:"events"`
	}{events}); err != nil {
		return err
	}
	return enc.Close()
}

var _ relay.Observer = (*Recorder)(nil)
