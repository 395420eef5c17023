package resource

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ohler55/ojg/jp"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind is the expected type of a mapped attribute.
type Kind int

// Attribute kinds.
const (
	KindAny Kind = iota
	KindString
	KindInt
	KindBool
	KindRecord
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is one row of a schema's inbound mapping table.
type Field struct {
	// Wire is the top-level key in the wire object.
	Wire string
	// Path is a JSONPath into the wire object, used instead of Wire for
	// values that live below the top level (e.g. "$.links.self.href").
	Path string
	// Attr is the canonical attribute name. Defaults to Wire.
	Attr string
	// Kind is the expected type; values are coerced or rejected.
	Kind Kind
	// Required makes a missing or null value a parse error.
	Required bool
	// Record maps the keys of a nested record. Keys not listed are kept as-is.
	Record []Field
	// Derive computes the value from the whole wire object instead of
	// reading Wire or Path. A nil result leaves the attribute unset. Wire,
	// when set alongside, names the key Derive consumes.
	Derive func(wire map[string]any) (any, error)
}

func (f Field) attr() string {
	if f.Attr != "" {
		return f.Attr
	}
	return f.Wire
}

func (f Field) source() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Wire
}

// Computed is an attribute derived, after mapping, from other canonical
// attributes with an expr-lang expression such as
// "origFilename != modifiedFilename".
type Computed struct {
	Attr string
	Expr string
}

// Policy controls when an attribute is written by ToJSON.
type Policy int

const (
	// SendIfSet writes the attribute when it is present and non-nil.
	SendIfSet Policy = iota
	// SendIfNewOrChanged writes the attribute only when the model has never
	// been persisted or the attribute was set since the last load or save,
	// and the attribute is present and non-nil. Otherwise the key is omitted.
	SendIfNewOrChanged
	// SendAlways writes the attribute, as null when unset.
	SendAlways
)

// OutField is one row of a schema's outbound mapping table.
type OutField struct {
	Attr string
	// Wire is the key written to the payload. Defaults to Attr.
	Wire   string
	Policy Policy
}

func (o OutField) wire() string {
	if o.Wire != "" {
		return o.Wire
	}
	return o.Attr
}

// Schema is the declarative mapping table for one resource type.
// Build it with NewSchema or MustSchema; a zero Schema is not usable.
type Schema struct {
	// Name identifies the resource in errors and logs.
	Name string
	// ResourceKey is the envelope key holding a single resource,
	// e.g. "user_file_attachment".
	ResourceKey string
	// URLRoot is the list endpoint; a persisted model lives at URLRoot + id + "/".
	URLRoot string
	// IDAttribute names the identifier attribute. Defaults to "id".
	IDAttribute string
	// Defaults are applied to every new model before anything else.
	Defaults map[string]any
	// Fields is the inbound mapping table.
	Fields []Field
	// Computed attributes are evaluated after Fields.
	Computed []Computed
	// PassThrough copies unmapped wire keys verbatim instead of dropping them.
	PassThrough bool
	// WireSchema is an optional JSON Schema the wire object must satisfy.
	WireSchema []byte
	// Out is the outbound mapping table used by ToJSON.
	Out []OutField

	paths     []jp.Expr
	mapped    map[string]bool
	programs  []*vm.Program
	validator *jsonschema.Schema
	built     bool
}

// NewSchema validates and compiles a mapping table. JSONPaths, expressions
// and the wire JSON Schema are all compiled here, once.
func NewSchema(def Schema) (*Schema, error) {
	s := def
	if s.Name == "" {
		return nil, errors.New("schema name cannot be empty")
	}
	if s.IDAttribute == "" {
		s.IDAttribute = "id"
	}

	attrs := make(map[string]bool)
	s.mapped = make(map[string]bool)
	s.paths = make([]jp.Expr, len(s.Fields))
	for i, f := range s.Fields {
		if err := checkField(f, false); err != nil {
			return nil, fmt.Errorf("schema %s: field %d: %w", s.Name, i, err)
		}
		if attrs[f.attr()] {
			return nil, fmt.Errorf("schema %s: duplicate attribute %q", s.Name, f.attr())
		}
		attrs[f.attr()] = true

		switch {
		case f.Path != "":
			x, err := jp.ParseString(f.Path)
			if err != nil {
				return nil, fmt.Errorf("schema %s: field %q: invalid path %q: %w", s.Name, f.attr(), f.Path, err)
			}
			s.paths[i] = x
		case f.Wire != "":
			if s.mapped[f.Wire] && f.Derive == nil {
				return nil, fmt.Errorf("schema %s: wire key %q mapped twice", s.Name, f.Wire)
			}
			s.mapped[f.Wire] = true
		}
	}

	s.programs = make([]*vm.Program, len(s.Computed))
	for i, c := range s.Computed {
		if c.Attr == "" {
			return nil, fmt.Errorf("schema %s: computed attribute %d has no name", s.Name, i)
		}
		if attrs[c.Attr] {
			return nil, fmt.Errorf("schema %s: duplicate attribute %q", s.Name, c.Attr)
		}
		attrs[c.Attr] = true
		program, err := expr.Compile(c.Expr, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("schema %s: computed %q: %w", s.Name, c.Attr, err)
		}
		s.programs[i] = program
	}

	wires := make(map[string]bool)
	for _, o := range s.Out {
		if o.Attr == "" {
			return nil, fmt.Errorf("schema %s: output field has no attribute", s.Name)
		}
		if wires[o.wire()] {
			return nil, fmt.Errorf("schema %s: output key %q written twice", s.Name, o.wire())
		}
		wires[o.wire()] = true
		if o.Policy < SendIfSet || o.Policy > SendAlways {
			return nil, fmt.Errorf("schema %s: output %q: unknown policy %d", s.Name, o.Attr, o.Policy)
		}
	}

	if len(s.WireSchema) > 0 {
		v, err := compileWireSchema(s.Name, s.WireSchema)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", s.Name, err)
		}
		s.validator = v
	}

	s.built = true
	return &s, nil
}

// MustSchema is like NewSchema but panics on error. It is meant for
// package-level resource declarations.
func MustSchema(def Schema) *Schema {
	s, err := NewSchema(def)
	if err != nil {
		panic(err)
	}
	return s
}

func checkField(f Field, nested bool) error {
	if f.attr() == "" {
		return errors.New("field needs Wire or Attr")
	}
	if f.Wire == "" && f.Path == "" && f.Derive == nil {
		return fmt.Errorf("field %q has no source", f.attr())
	}
	if f.Wire != "" && f.Path != "" {
		return fmt.Errorf("field %q sets both Wire and Path", f.attr())
	}
	if f.Kind < KindAny || f.Kind > KindList {
		return fmt.Errorf("field %q: unknown kind %d", f.attr(), f.Kind)
	}
	if nested && (f.Path != "" || f.Derive != nil || len(f.Record) > 0) {
		return fmt.Errorf("nested field %q may only use Wire, Attr and Kind", f.attr())
	}
	if len(f.Record) > 0 {
		if f.Kind != KindRecord {
			return fmt.Errorf("field %q declares record keys but is %s", f.attr(), f.Kind)
		}
		for _, sub := range f.Record {
			if err := checkField(sub, true); err != nil {
				return fmt.Errorf("field %q: %w", f.attr(), err)
			}
		}
	}
	return nil
}

func compileWireSchema(name string, data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add wire schema: %w", err)
	}
	v, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile wire schema: %w", err)
	}
	return v, nil
}
