package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/ohler55/ojg/jp"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parse maps a raw payload to canonical attributes. The payload may be an
// envelope ({"stat": "ok", <ResourceKey>: {...}}) or the bare wire object.
//
// Parse is pure: raw is not modified and the same input always yields an
// equal result.
func (s *Schema) Parse(raw map[string]any) (Attributes, error) {
	if !s.built {
		return nil, fmt.Errorf("schema %q used without NewSchema", s.Name)
	}
	wire, err := s.unwrap(raw)
	if err != nil {
		return nil, err
	}
	if err := s.validate(wire); err != nil {
		return nil, err
	}

	out := NewAttributes()
	if s.PassThrough {
		for k, v := range wire {
			if !s.mapped[k] {
				out[k] = v
			}
		}
	}

	for i, f := range s.Fields {
		v, present, err := s.read(i, f, wire)
		if err != nil {
			return nil, err
		}
		if !present || v == nil {
			if f.Required {
				return nil, parseErrorf(s.Name, f.source(), "required field is missing")
			}
			if present {
				out[f.attr()] = nil
			}
			continue
		}
		cv, err := coerce(s.Name, f, v)
		if err != nil {
			return nil, err
		}
		out[f.attr()] = cv
	}

	for i, c := range s.Computed {
		v, err := expr.Run(s.programs[i], map[string]any(out))
		if err != nil {
			return nil, &ParseError{Resource: s.Name, Field: c.Attr, Reason: "computed attribute failed", Err: err}
		}
		out[c.Attr] = v
	}
	return out, nil
}

// ParseJSON decodes data and parses it.
func (s *Schema) ParseJSON(data []byte) (Attributes, error) {
	raw, err := decodeObject(s.Name, data)
	if err != nil {
		return nil, err
	}
	return s.Parse(raw)
}

func (s *Schema) read(i int, f Field, wire map[string]any) (any, bool, error) {
	switch {
	case f.Derive != nil:
		v, err := f.Derive(wire)
		if err != nil {
			return nil, false, &ParseError{Resource: s.Name, Field: f.attr(), Reason: "derivation failed", Err: err}
		}
		return v, v != nil, nil
	case f.Path != "":
		results := s.paths[i].Get(wire)
		if len(results) == 0 {
			return nil, false, nil
		}
		return results[0], true, nil
	default:
		v, ok := wire[f.Wire]
		return v, ok, nil
	}
}

// unwrap extracts the resource object from an envelope.
func (s *Schema) unwrap(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, parseErrorf(s.Name, "", "payload is empty")
	}
	if _, ok := raw["stat"]; !ok {
		return raw, nil
	}
	if err := checkStat(s.Name, raw); err != nil {
		return nil, err
	}
	if s.ResourceKey == "" {
		return nil, parseErrorf(s.Name, "", "envelope received but schema declares no resource key")
	}
	inner, ok := raw[s.ResourceKey]
	if !ok {
		return nil, parseErrorf(s.Name, s.ResourceKey, "envelope is missing the resource key")
	}
	obj, ok := asObject(inner)
	if !ok {
		return nil, parseErrorf(s.Name, s.ResourceKey, "expected an object, got %T", inner)
	}
	return obj, nil
}

func (s *Schema) validate(wire map[string]any) error {
	if s.validator == nil {
		return nil
	}
	// Round-trip through JSON so Go-constructed payloads validate the same
	// way as decoded ones.
	data, err := json.Marshal(wire)
	if err != nil {
		return &ParseError{Resource: s.Name, Reason: "payload is not JSON-encodable", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &ParseError{Resource: s.Name, Reason: "payload is not JSON-encodable", Err: err}
	}

	if err := s.validator.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := firstLeaf(ve)
			return &ParseError{
				Resource: s.Name,
				Field:    strings.TrimPrefix(leaf.InstanceLocation, "/"),
				Reason:   leaf.Message,
			}
		}
		return &ParseError{Resource: s.Name, Reason: "schema validation failed", Err: err}
	}
	return nil
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// checkStat returns a ParseError for a {"stat": "fail"} envelope.
func checkStat(resource string, raw map[string]any) error {
	stat, _ := raw["stat"].(string)
	if stat == "ok" {
		return nil
	}
	pe := &ParseError{Resource: resource, Field: "stat", Reason: fmt.Sprintf("server returned stat %q", stat)}
	if e, ok := asObject(raw["err"]); ok {
		if msg, ok := e["msg"].(string); ok && msg != "" {
			pe.Reason = msg
		}
		if code, err := toInt(e["code"]); err == nil {
			pe.Code = code
		}
	}
	return pe
}

// arrayAt returns the array stored under key in an envelope.
func arrayAt(resource, key string, raw map[string]any) ([]any, error) {
	if _, ok := raw["stat"]; ok {
		if err := checkStat(resource, raw); err != nil {
			return nil, err
		}
	}
	results := jp.R().C(key).Get(raw)
	if len(results) == 0 {
		return nil, parseErrorf(resource, key, "envelope is missing the array key")
	}
	switch items := results[0].(type) {
	case []any:
		return items, nil
	case []map[string]any:
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = it
		}
		return out, nil
	default:
		return nil, parseErrorf(resource, key, "expected an array, got %T", results[0])
	}
}

func decodeObject(resource string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, parseErrorf(resource, "", "response body is empty")
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Resource: resource, Reason: "response is not a JSON object", Err: err}
	}
	return raw, nil
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func coerce(resource string, f Field, v any) (any, error) {
	switch f.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt:
		n, err := toInt(v)
		if err == nil {
			return n, nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindList:
		if l, ok := v.([]any); ok {
			return l, nil
		}
		if l, ok := v.([]map[string]any); ok {
			out := make([]any, len(l))
			for i, it := range l {
				out[i] = it
			}
			return out, nil
		}
	case KindRecord:
		if m, ok := asObject(v); ok {
			return mapRecord(resource, f, m)
		}
	default:
		return v, nil
	}
	return nil, parseErrorf(resource, f.source(), "expected %s, got %T", f.Kind, v)
}

// mapRecord builds a Record from a nested wire object. Declared keys are
// renamed and coerced; other keys are copied unchanged.
func mapRecord(resource string, f Field, m map[string]any) (Record, error) {
	rec := make(Record, len(m))
	declared := make(map[string]bool, len(f.Record))
	for _, sub := range f.Record {
		declared[sub.Wire] = true
	}
	for k, v := range m {
		if !declared[k] {
			rec[k] = v
		}
	}
	for _, sub := range f.Record {
		name := sub.attr()
		v, ok := m[sub.Wire]
		if !ok || v == nil {
			if sub.Required {
				return nil, parseErrorf(resource, f.source()+"."+sub.Wire, "required field is missing")
			}
			if ok {
				rec[name] = nil
			}
			continue
		}
		// Qualify the key so errors point at the nested location.
		sub.Wire = f.source() + "." + sub.Wire
		cv, err := coerce(resource, sub, v)
		if err != nil {
			return nil, err
		}
		rec[name] = cv
	}
	return rec, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		if n < math.MinInt || n >= math.MaxInt {
			return 0, fmt.Errorf("%v is out of range", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("%T is not a number", v)
	}
}
