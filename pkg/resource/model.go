package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/logging"
)

// Model is a single resource instance: its attributes, the set of
// attributes changed since the last load or save, and its identity.
type Model struct {
	schema *Schema
	cid    string

	mu        sync.Mutex
	attrs     Attributes
	dirty     map[string]uint64 // name -> change sequence
	changes   uint64
	persisted bool
	url       string
	client    fetch.Client
	owner     *Collection
	gen       uint64

	logger   *slog.Logger
	observer Observer
}

type modelConfig struct {
	parse    bool
	client   fetch.Client
	url      string
	logger   *slog.Logger
	observer Observer
}

// Option configures a Model.
type Option func(*modelConfig)

// WithParse treats the initial attributes passed to New as a raw API
// payload and runs them through Parse before storing them.
func WithParse() Option {
	return func(c *modelConfig) { c.parse = true }
}

// WithClient sets the fetch client used by Fetch, Save and Destroy.
func WithClient(client fetch.Client) Option {
	return func(c *modelConfig) { c.client = client }
}

// WithURL pins the model's URL instead of deriving it from URLRoot and id.
func WithURL(url string) Option {
	return func(c *modelConfig) { c.url = url }
}

// WithLogger sets the model's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *modelConfig) { c.logger = logger }
}

// WithObserver sets the model's observer.
func WithObserver(o Observer) Option {
	return func(c *modelConfig) { c.observer = o }
}

// New creates a model. Schema defaults are applied first, then initial is
// overlaid, after being parsed when WithParse is given.
func New(schema *Schema, initial map[string]any, opts ...Option) (*Model, error) {
	var cfg modelConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	attrs := initial
	if cfg.parse && initial != nil {
		parsed, err := schema.Parse(initial)
		if err != nil {
			return nil, err
		}
		attrs = parsed
	}

	m := newModel(schema, attrs)
	m.client = cfg.client
	m.url = cfg.url
	m.logger = logging.OrNop(cfg.logger).With("resource", schema.Name, "cid", m.cid)
	if cfg.observer != nil {
		m.observer = cfg.observer
	}
	return m, nil
}

func newModel(schema *Schema, attrs map[string]any) *Model {
	m := &Model{
		schema:   schema,
		cid:      uuid.NewString(),
		attrs:    NewAttributes(),
		dirty:    make(map[string]uint64),
		logger:   logging.Nop(),
		observer: NoopObserver{},
	}
	m.attrs.merge(schema.Defaults)
	m.attrs.merge(attrs)
	m.persisted = m.attrs.Get(schema.IDAttribute) != nil
	return m
}

// Schema returns the model's mapping table.
func (m *Model) Schema() *Schema {
	return m.schema
}

// CID returns the client-side identifier assigned at construction.
func (m *Model) CID() string {
	return m.cid
}

// Parse maps a raw payload to attributes without touching the model.
func (m *Model) Parse(raw map[string]any) (Attributes, error) {
	return m.schema.Parse(raw)
}

// Get returns the attribute value, or nil when unset.
func (m *Model) Get(name string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs.Get(name)
}

// Lookup returns the attribute value and whether it is present.
func (m *Model) Lookup(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs.Lookup(name)
}

// Set stores value under name and records name as changed. Assigning a
// non-nil identifier marks the model as persisted.
func (m *Model) Set(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(name, value)
}

// SetAll sets every pair in values.
func (m *Model) SetAll(values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		m.setLocked(k, values[k])
	}
}

// Unset removes name and records it as changed.
func (m *Model) Unset(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs.Delete(name)
	m.markChanged(name)
}

func (m *Model) setLocked(name string, value any) {
	m.attrs.Set(name, value)
	m.markChanged(name)
	if name == m.schema.IDAttribute && value != nil {
		m.persisted = true
	}
}

func (m *Model) markChanged(name string) {
	m.changes++
	m.dirty[name] = m.changes
}

// HasChanged reports whether name was set since the last load or save.
func (m *Model) HasChanged(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dirty[name]
	return ok
}

// Changed returns the names set since the last load or save, sorted.
func (m *Model) Changed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.dirty))
}

// Attributes returns a snapshot of the current attributes.
func (m *Model) Attributes() Attributes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs.Clone()
}

// ID returns the identifier attribute, or nil.
func (m *Model) ID() any {
	return m.Get(m.schema.IDAttribute)
}

// IsNew reports whether no identifier has ever been assigned.
func (m *Model) IsNew() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.persisted
}

// Collection returns the owning collection, or nil.
func (m *Model) Collection() *Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

func (m *Model) setOwner(c *Collection) {
	m.mu.Lock()
	m.owner = c
	m.mu.Unlock()
}

// ToJSON builds the request body for a write, following the schema's Out
// table. Keys whose policy does not apply are absent, never null.
func (m *Model) ToJSON() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toJSONLocked()
}

func (m *Model) toJSONLocked() map[string]any {
	out := make(map[string]any, len(m.schema.Out))
	for _, o := range m.schema.Out {
		v, present := m.attrs.Lookup(o.Attr)
		switch o.Policy {
		case SendAlways:
			out[o.wire()] = v
		case SendIfSet:
			if present && v != nil {
				out[o.wire()] = v
			}
		case SendIfNewOrChanged:
			_, changed := m.dirty[o.Attr]
			if (!m.persisted || changed) && present && v != nil {
				out[o.wire()] = v
			}
		}
	}
	return out
}

// MarshalJSON encodes ToJSON.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToJSON())
}

// URL returns the model's endpoint: the pinned URL if any, the list
// endpoint for a new model, or the list endpoint plus id otherwise. The
// list endpoint is the schema's URLRoot, falling back to the owning
// collection's URL.
func (m *Model) URL() (string, error) {
	m.mu.Lock()
	url, persisted, owner := m.url, m.persisted, m.owner
	id := m.attrs.Get(m.schema.IDAttribute)
	m.mu.Unlock()

	if url != "" {
		return url, nil
	}
	root := m.schema.URLRoot
	if root == "" && owner != nil {
		root = owner.URL()
	}
	if root == "" {
		return "", ErrNoURL
	}
	if !persisted || id == nil {
		return root, nil
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return fmt.Sprintf("%s%v/", root, id), nil
}

// SetURL pins the model's URL.
func (m *Model) SetURL(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.url = url
}

func (m *Model) fetchClient() (fetch.Client, error) {
	m.mu.Lock()
	client, owner := m.client, m.owner
	m.mu.Unlock()
	if client == nil && owner != nil {
		client = owner.fetchClient()
	}
	if client == nil {
		return nil, ErrNoClient
	}
	return client, nil
}

// ticket identifies one network operation: its generation and the last
// change it accounts for.
type ticket struct {
	gen  uint64
	mark uint64
}

// begin starts a network operation. With withBody it also builds the write
// body, so the body and the ticket see the same changes.
func (m *Model) begin(withBody bool) (ticket, map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	t := ticket{gen: m.gen, mark: m.changes}
	if withBody {
		return t, m.toJSONLocked()
	}
	return t, nil
}

// commit applies parsed attributes if t is still the newest operation.
// Attributes changed after the operation began stay marked as changed.
func (m *Model) commit(t ticket, op string, attrs Attributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.gen != m.gen {
		m.logger.Warn("discarding superseded response", "operation", op)
		m.observer.OnSuperseded(m.schema.Name, op)
		return ErrSuperseded
	}
	m.attrs.merge(attrs)
	maps.DeleteFunc(m.dirty, func(_ string, seq uint64) bool { return seq <= t.mark })
	if m.attrs.Get(m.schema.IDAttribute) != nil {
		m.persisted = true
	}
	return nil
}

// Fetch loads the model from its URL and merges the parsed response into
// its attributes. The changed set is cleared.
func (m *Model) Fetch(ctx context.Context) error {
	url, err := m.URL()
	if err != nil {
		return err
	}
	_, err = m.roundTrip(ctx, OpFetch, http.MethodGet, url)
	return err
}

// Save creates the model (POST to the list endpoint) when it is new, or
// updates it (PUT to its URL) otherwise, sending ToJSON as the body. The
// response, when it has one, is merged into the attributes.
func (m *Model) Save(ctx context.Context) error {
	created := m.IsNew()
	url, err := m.URL()
	if err != nil {
		return err
	}
	method := http.MethodPut
	if created {
		method = http.MethodPost
	}

	start := time.Now()
	_, err = m.roundTrip(ctx, OpSave, method, url)
	if err != nil {
		return err
	}
	m.observer.OnSave(m.schema.Name, created, time.Since(start))
	return nil
}

// Destroy deletes the model on the server and releases it from its owning
// collection. A new model is only released.
func (m *Model) Destroy(ctx context.Context) error {
	if !m.IsNew() {
		client, err := m.fetchClient()
		if err != nil {
			return err
		}
		url, err := m.URL()
		if err != nil {
			return err
		}
		t, _ := m.begin(false)
		start := time.Now()
		if _, err := client.Do(ctx, &fetch.Request{Method: http.MethodDelete, URL: url}); err != nil {
			m.observer.OnError(m.schema.Name, OpDestroy, err)
			return err
		}
		if err := m.commit(t, OpDestroy, nil); err != nil {
			return err
		}
		m.observer.OnDestroy(m.schema.Name, time.Since(start))
	}
	if owner := m.Collection(); owner != nil {
		owner.Remove(m)
	}
	return nil
}

// roundTrip issues the request for op, parses the response body (if any)
// and commits it. Saves carry ToJSON as the body.
func (m *Model) roundTrip(ctx context.Context, op, method, url string) (Attributes, error) {
	client, err := m.fetchClient()
	if err != nil {
		return nil, err
	}
	t, body := m.begin(op == OpSave)
	req := &fetch.Request{Method: method, URL: url}
	if body != nil {
		req.Body = body
	}
	start := time.Now()

	m.logger.Debug("request", "operation", op, "method", req.Method, "url", req.URL)
	resp, err := client.Do(ctx, req)
	if err != nil {
		m.observer.OnError(m.schema.Name, op, err)
		return nil, err
	}

	// Writes may answer 204 with no body; a fetch always needs one.
	var attrs Attributes
	if op == OpFetch || len(strings.TrimSpace(string(resp.Body))) > 0 {
		attrs, err = m.schema.ParseJSON(resp.Body)
		if err != nil {
			m.observer.OnError(m.schema.Name, op, err)
			return nil, err
		}
	}
	if err := m.commit(t, op, attrs); err != nil {
		return nil, err
	}
	if op == OpFetch {
		m.observer.OnFetch(m.schema.Name, req.URL, time.Since(start))
	}
	return attrs, nil
}
