// Package parse deserializes one JSON log line into a model.Record.
package parse

import (
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/fernworks/treelight/internal/model"
)

// Parser turns JSON-per-line log records into model.Records. The underlying
// fastjson parsers are pooled, so a single Parser is safe for concurrent use.
//
// fastjson is used instead of encoding/json because Object.Visit walks fields
// in document order and reports duplicate keys, both of which the field model
// requires.
type Parser struct {
	pool fastjson.ParserPool
}

func New() *Parser {
	return &Parser{}
}

// Line parses one log line: required string fields "timestamp", "level" and
// "target", a required "fields" object, and an optional "spans" array of
// objects (outermost span first). Field values outside {string, bool, int64,
// float64} make the whole line malformed.
func (p *Parser) Line(line string) (model.Record, error) {
	pr := p.pool.Get()
	defer p.pool.Put(pr)

	v, err := pr.Parse(line)
	if err != nil {
		return model.Record{}, fmt.Errorf("parse line: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return model.Record{}, fmt.Errorf("line is %s, want object", v.Type())
	}

	var rec model.Record
	if rec.Timestamp, err = stringField(v, "timestamp"); err != nil {
		return model.Record{}, err
	}
	if rec.Level, err = stringField(v, "level"); err != nil {
		return model.Record{}, err
	}
	if rec.Target, err = stringField(v, "target"); err != nil {
		return model.Record{}, err
	}

	fv := v.Get("fields")
	if fv == nil {
		return model.Record{}, fmt.Errorf(`missing "fields"`)
	}
	if rec.Fields, err = fields(fv); err != nil {
		return model.Record{}, fmt.Errorf(`"fields": %w`, err)
	}

	if sv := v.Get("spans"); sv != nil {
		arr, err := sv.Array()
		if err != nil {
			return model.Record{}, fmt.Errorf(`"spans": %w`, err)
		}
		rec.Spans = make([]model.Fields, 0, len(arr))
		for i, ctx := range arr {
			f, err := fields(ctx)
			if err != nil {
				return model.Record{}, fmt.Errorf("spans[%d]: %w", i, err)
			}
			rec.Spans = append(rec.Spans, f)
		}
	}

	return rec, nil
}

func stringField(v *fastjson.Value, name string) (string, error) {
	fv := v.Get(name)
	if fv == nil {
		return "", fmt.Errorf("missing %q", name)
	}
	b, err := fv.StringBytes()
	if err != nil {
		return "", fmt.Errorf("%q: %w", name, err)
	}
	return string(b), nil
}

// fields converts a JSON object into an ordered pair list, keeping duplicate
// keys and document order.
func fields(v *fastjson.Value) (model.Fields, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}

	out := make(model.Fields, 0, obj.Len())
	var visitErr error
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if visitErr != nil {
			return
		}
		val, err := value(v)
		if err != nil {
			visitErr = fmt.Errorf("field %q: %w", key, err)
			return
		}
		out = append(out, model.Pair{Key: string(key), Val: val})
	})
	if visitErr != nil {
		return nil, visitErr
	}
	return out, nil
}

func value(v *fastjson.Value) (model.Value, error) {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return model.String(string(b)), nil
	case fastjson.TypeTrue:
		return model.Bool(true), nil
	case fastjson.TypeFalse:
		return model.Bool(false), nil
	case fastjson.TypeNumber:
		// Integers first, like the emitter's own encoding: only numbers
		// that cannot be an int64 become floats.
		if i, err := v.Int64(); err == nil {
			return model.Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return model.Value{}, err
		}
		return model.Float(f), nil
	default:
		return model.Value{}, fmt.Errorf("unsupported value type %s", v.Type())
	}
}
