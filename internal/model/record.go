package model

// Level is a message severity. LevelNone marks a message whose line carried
// no recognizable level.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone Level = 255
)

// ParseLevel maps the exact names the tracing emitter produces. Anything
// else, including different casing, is LevelNone rather than an error.
func ParseLevel(s string) Level {
	switch s {
	case "ERROR":
		return LevelError
	case "WARN":
		return LevelWarn
	case "INFO":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	case "TRACE":
		return LevelTrace
	default:
		return LevelNone
	}
}

// String returns the canonical upper-case name, or "" for LevelNone.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return ""
	}
}

// Kind discriminates the closed set of field value types.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
)

// Value is one field value: string, bool, int64 or float64. Only the payload
// selected by Kind is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Bool  bool
	Int   int64
	Float float64
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Pair is one key/value entry of a field list.
type Pair struct {
	Key string
	Val Value
}

// Fields is an ordered list of key/value pairs. It is deliberately not a map:
// tracing emitters can serialize the same key twice in one span context, and
// both order and duplicates are significant for span identity.
type Fields []Pair

// Record is one parsed log line. Spans holds the span contexts the line was
// emitted under, outermost first.
type Record struct {
	Timestamp string
	Level     string
	Target    string
	Fields    Fields
	Spans     []Fields
}
