package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fernworks/treelight/internal/intern"
	"github.com/fernworks/treelight/internal/model"
)

// Query selects what Render produces: the whole tree, or one span's subtree.
type Query struct {
	Span SpanID
	All  bool
}

func QueryAll() Query {
	return Query{All: true}
}

func QuerySpan(id SpanID) Query {
	return Query{Span: id}
}

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Absent level and timestamp render as blanks of matching width so the
// columns of a line never shift.
const (
	levelWidth     = len("[ERROR] ")
	timestampWidth = len("[2006-01-02T15:04:05.000Z] ")
)

// Render produces the text form of the selected subtree, depth first and in
// arrival order. Only the most recent (query, text) pair is memoized:
// repeating the last query returns the cached text, any other query
// recomputes and replaces it. New ingestion does not invalidate the cache by
// itself; Clear does, and the store lock serializes Render against ingestion.
func (s *Store) Render(q Query) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastQuery != nil && *s.lastQuery == q {
		return s.lastText
	}

	root := RootSpan
	if !q.All {
		root = q.Span
	}

	var b strings.Builder
	if span, ok := s.spans[root]; ok {
		s.renderSpan(&b, 0, span)
	}
	s.renders++

	q2 := q
	s.lastQuery = &q2
	s.lastText = b.String()
	return s.lastText
}

func (s *Store) renderSpan(b *strings.Builder, depth int, span *SpanEntry) {
	s.renderHeader(b, depth, span)
	for _, ev := range span.Events {
		switch ev.Kind {
		case EventSpan:
			s.renderSpan(b, depth+1, s.spans[ev.Span])
		case EventMessage:
			s.renderMessage(b, depth+1, s.messages[ev.Message])
		}
	}
}

// renderHeader emits "[name, k1 = v1, ...]". A span with the empty name gets
// no header; its children still indent one level deeper.
func (s *Store) renderHeader(b *strings.Builder, depth int, span *SpanEntry) {
	if span.Name == s.iEmpty {
		return
	}
	indent(b, depth)
	b.WriteByte('[')
	b.WriteString(s.interner.Lookup(span.Name))
	for _, p := range span.Fields {
		b.WriteString(", ")
		b.WriteString(s.interner.Lookup(p.Key))
		b.WriteString(" = ")
		s.renderValue(b, p.Val)
	}
	b.WriteString("]\n")
}

// renderMessage emits one "[LEVEL] [timestamp] [k = v] ... text" line.
// "message"-keyed fields are suppressed from the generic dump; the first one
// becomes the trailing message text.
func (s *Store) renderMessage(b *strings.Builder, depth int, msg *MessageEntry) {
	indent(b, depth)

	if msg.Level == model.LevelNone {
		pad(b, levelWidth)
	} else {
		fmt.Fprintf(b, "[%-5s] ", msg.Level)
	}

	if msg.Timestamp.IsZero() {
		pad(b, timestampWidth)
	} else {
		// Normalized to UTC so every stamp renders Z-suffixed at the
		// placeholder width, whatever offset the line carried.
		b.WriteByte('[')
		b.WriteString(msg.Timestamp.UTC().Format(timestampFormat))
		b.WriteString("] ")
	}

	var text *intern.Value
	for i, p := range msg.Fields {
		if p.Key == s.iMessage {
			if text == nil {
				text = &msg.Fields[i].Val
			}
			continue
		}
		b.WriteByte('[')
		b.WriteString(s.interner.Lookup(p.Key))
		b.WriteString(" = ")
		s.renderValue(b, p.Val)
		b.WriteString("] ")
	}
	if text != nil {
		s.renderValue(b, *text)
	}
	b.WriteByte('\n')
}

func (s *Store) renderValue(b *strings.Builder, v intern.Value) {
	switch v.Kind {
	case model.KindString:
		b.WriteString(s.interner.Lookup(v.Str))
	case model.KindBool:
		b.WriteString(strconv.FormatBool(v.Bool))
	case model.KindInt:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case model.KindFloat:
		b.WriteString(strconv.FormatFloat(math.Float64frombits(v.Float), 'g', -1, 64))
	}
}

func indent(b *strings.Builder, depth int) {
	pad(b, depth*4)
}

func pad(b *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		b.WriteByte(' ')
	}
}
