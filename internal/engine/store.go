// Package engine owns the reconstructed span tree: the log store, the
// renderer with its single-slot cache, and the ingestion processor.
package engine

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernworks/treelight/internal/intern"
	"github.com/fernworks/treelight/internal/model"
	"github.com/fernworks/treelight/internal/parse"
)

// SpanID and MessageID are dense identifiers scoped to one store generation.
// Clear starts a new generation and restarts both sequences.
type SpanID uint64

type MessageID uint64

// RootSpan is the distinguished span every tree hangs off. It always exists
// and survives Clear.
const RootSpan SpanID = 0

const rootSpanName = "<all spans>"

// Well-known keys.
const (
	messageKey = "message"
	nameKey    = "name"
)

// EventKind tags an Event as a sub-span or a message reference.
type EventKind uint8

const (
	EventSpan EventKind = iota
	EventMessage
)

// Event is one child of a span. The events of a span interleave sub-spans and
// messages in arrival order, which reproduces the temporal order of the
// span's children for display.
type Event struct {
	Kind    EventKind
	Span    SpanID
	Message MessageID
}

// SpanEntry is one node of the reconstructed tree.
type SpanEntry struct {
	Name   intern.Handle
	Fields intern.Fields
	Events []Event

	// children dedups sub-span contexts: exactly one entry per distinct
	// interned field list observed as a child context of this span, mapping
	// to the span created at first observation.
	children map[string]SpanID
}

// MessageEntry is one log event, a leaf under some span. The message text is
// conventionally the value under the "message" key in Fields, not a separate
// field.
type MessageEntry struct {
	Timestamp time.Time // zero when the line carried no parsable timestamp
	Level     model.Level
	Target    intern.Handle
	Fields    intern.Fields
}

// Store owns every span and message reconstructed from a log file, the
// interner they share, and the render cache. A single mutex covers the whole
// store: Clear, IngestLine and Render each hold it for their full duration,
// so a reader observes either a freshly reset generation or a consistent set
// of ingested records, never a partial mutation.
type Store struct {
	mu sync.Mutex

	spans    map[SpanID]*SpanEntry
	messages map[MessageID]*MessageEntry

	nextSpanID    SpanID
	nextMessageID MessageID

	interner *intern.Table
	iMessage intern.Handle
	iName    intern.Handle
	iEmpty   intern.Handle

	parser *parse.Parser

	// Single-slot render cache: the most recent query and its text.
	lastQuery *Query
	lastText  string
	renders   int

	generation uuid.UUID
}

// NewStore returns an initialized store containing only the root span.
func NewStore() *Store {
	s := &Store{
		interner: intern.NewTable(),
		parser:   parse.New(),
	}
	s.iEmpty = s.interner.Intern("")
	s.iMessage = s.interner.Intern(messageKey)
	s.iName = s.interner.Intern(nameKey)
	s.reset()
	return s
}

// reset starts a new generation. Interned strings are retained: handles are
// stable for the process lifetime of the store. Callers hold s.mu, or are the
// sole owner during construction.
func (s *Store) reset() {
	s.spans = map[SpanID]*SpanEntry{
		RootSpan: {
			Name:     s.interner.Intern(rootSpanName),
			children: make(map[string]SpanID),
		},
	}
	s.messages = make(map[MessageID]*MessageEntry)
	s.nextSpanID = RootSpan + 1
	s.nextMessageID = 0
	s.lastQuery = nil
	s.lastText = ""
	s.generation = uuid.New()
}

// Clear wipes every span and message and starts a new generation. The root
// span keeps its identity and name but loses all children.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// IngestLine parses one raw line and folds it into the tree. A malformed line
// is logged and dropped; it never fails the rest of the file.
func (s *Store) IngestLine(line string) {
	rec, err := s.parser.Line(line)
	if err != nil {
		log.Printf("treelight: skipping malformed log line: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingest(rec)
}

// ingest resolves rec's span chain from the root down and appends the message
// to the innermost span. Callers hold s.mu.
func (s *Store) ingest(rec model.Record) {
	cur := RootSpan
	for _, ctx := range rec.Spans {
		cur = s.resolveSpan(cur, s.interner.InternFields(ctx))
	}

	id := s.nextMessageID
	s.nextMessageID++

	msg := &MessageEntry{
		Level:  model.ParseLevel(rec.Level),
		Target: s.interner.Intern(rec.Target),
		Fields: s.interner.InternFields(rec.Fields),
	}
	// Best effort: an unparsable timestamp leaves the zero value.
	if ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err == nil {
		msg.Timestamp = ts
	}

	s.messages[id] = msg
	parent := s.spans[cur]
	parent.Events = append(parent.Events, Event{Kind: EventMessage, Message: id})
}

// resolveSpan returns the child of parent matching ctx, creating it on first
// observation. Two lines independently emitting the same field list at the
// same nesting point collapse into one node: the dedup key is structural
// equality of the full ordered pair list, which after interning reduces to a
// handle-by-handle comparison.
func (s *Store) resolveSpan(parent SpanID, ctx intern.Fields) SpanID {
	p := s.spans[parent]
	key := ctx.Key()
	if id, ok := p.children[key]; ok {
		return id
	}

	id := s.nextSpanID
	s.nextSpanID++

	name, fields := s.splitName(ctx)
	s.spans[id] = &SpanEntry{
		Name:     name,
		Fields:   fields,
		children: make(map[string]SpanID),
	}
	p.children[key] = id
	p.Events = append(p.Events, Event{Kind: EventSpan, Span: id})
	return id
}

// splitName extracts the display name from a span context. An emitter that
// sets a "name" field on a span serializes the key twice, real span name
// last, so only the final pair is examined: a trailing ("name", string) pair
// becomes the display name and is dropped from the stored fields, while any
// earlier "name" pair stays untouched. Without such a pair the name is the
// empty string and the header is suppressed when rendering.
func (s *Store) splitName(ctx intern.Fields) (intern.Handle, intern.Fields) {
	if n := len(ctx); n > 0 {
		last := ctx[n-1]
		if last.Key == s.iName && last.Val.Kind == model.KindString && last.Val.Str != s.iEmpty {
			return last.Val.Str, ctx[:n-1]
		}
	}
	return s.iEmpty, ctx
}

// Span returns a view of one span entry.
func (s *Store) Span(id SpanID) (SpanEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spans[id]
	if !ok {
		return SpanEntry{}, false
	}
	return *sp, true
}

// Message returns a view of one message entry.
func (s *Store) Message(id MessageID) (MessageEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return MessageEntry{}, false
	}
	return *m, true
}

// Resolve returns the content behind an interned handle.
func (s *Store) Resolve(h intern.Handle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interner.Lookup(h)
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Generation uuid.UUID
	Spans      int
	Messages   int
	Strings    int
	Renders    int
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Generation: s.generation,
		Spans:      len(s.spans),
		Messages:   len(s.messages),
		Strings:    s.interner.Len(),
		Renders:    s.renders,
	}
}
