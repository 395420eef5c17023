package resource

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/logging"
)

// State is the fetch state of a collection.
type State int

// Collection states.
const (
	// StateEmpty means no fetch has succeeded yet and none is in flight.
	StateEmpty State = iota
	// StateFetching means a fetch is in flight.
	StateFetching
	// StatePopulated means the members come from the last successful fetch
	// (or were set directly).
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFetching:
		return "fetching"
	case StatePopulated:
		return "populated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Collection is an ordered list of models sharing one schema. Order is
// the server's (or insertion) order unless a comparator is configured.
type Collection struct {
	schema   *Schema
	arrayKey string
	less     func(a, b *Model) int

	mu        sync.RWMutex
	url       string
	client    fetch.Client
	models    []*Model
	populated bool
	gen       uint64
	pending   uint64

	logger   *slog.Logger
	observer Observer
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithCollectionClient sets the fetch client used by the collection and,
// unless they have their own, by its members.
func WithCollectionClient(client fetch.Client) CollectionOption {
	return func(c *Collection) { c.client = client }
}

// WithCollectionURL sets the list endpoint.
func WithCollectionURL(url string) CollectionOption {
	return func(c *Collection) { c.url = url }
}

// WithArrayKey sets the envelope key holding the member array, e.g. "branches".
func WithArrayKey(key string) CollectionOption {
	return func(c *Collection) { c.arrayKey = key }
}

// WithComparator keeps members sorted by cmp (as in slices.SortStableFunc).
func WithComparator(cmp func(a, b *Model) int) CollectionOption {
	return func(c *Collection) { c.less = cmp }
}

// WithCollectionLogger sets the collection's logger.
func WithCollectionLogger(logger *slog.Logger) CollectionOption {
	return func(c *Collection) { c.logger = logging.OrNop(logger) }
}

// WithCollectionObserver sets the collection's observer.
func WithCollectionObserver(o Observer) CollectionOption {
	return func(c *Collection) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewCollection creates an empty collection of schema's models.
func NewCollection(schema *Schema, opts ...CollectionOption) *Collection {
	c := &Collection{
		schema:   schema,
		logger:   logging.Nop(),
		observer: NoopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("resource", schema.Name, "collection", true)
	return c
}

// Schema returns the members' schema.
func (c *Collection) Schema() *Schema {
	return c.schema
}

// URL returns the list endpoint.
func (c *Collection) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// SetURL sets the list endpoint.
func (c *Collection) SetURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
}

func (c *Collection) fetchClient() fetch.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// State returns the current fetch state.
func (c *Collection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.pending != 0:
		return StateFetching
	case c.populated:
		return StatePopulated
	default:
		return StateEmpty
	}
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// At returns the member at index i, or an *IndexError when i is out of range.
func (c *Collection) At(i int) (*Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.models) {
		return nil, &IndexError{Index: i, Len: len(c.models)}
	}
	return c.models[i], nil
}

// Models returns a snapshot of the members in order.
func (c *Collection) Models() []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.models)
}

// All iterates over a snapshot of the members in order.
func (c *Collection) All() iter.Seq2[int, *Model] {
	return slices.All(c.Models())
}

// Get returns the member whose identifier equals id, or nil.
func (c *Collection) Get(id any) *Model {
	want := fmt.Sprint(id)
	for _, m := range c.Models() {
		if mid := m.ID(); mid != nil && fmt.Sprint(mid) == want {
			return m
		}
	}
	return nil
}

// Parse extracts and parses every member payload of a list response
// without touching the collection.
func (c *Collection) Parse(raw map[string]any) ([]Attributes, error) {
	if c.arrayKey == "" {
		return nil, parseErrorf(c.schema.Name, "", "collection declares no array key")
	}
	items, err := arrayAt(c.schema.Name, c.arrayKey, raw)
	if err != nil {
		return nil, err
	}
	out := make([]Attributes, len(items))
	for i, item := range items {
		obj, ok := asObject(item)
		if !ok {
			return nil, parseErrorf(c.schema.Name, fmt.Sprintf("%s[%d]", c.arrayKey, i), "expected an object, got %T", item)
		}
		attrs, err := c.schema.Parse(obj)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", c.arrayKey, i, err)
		}
		out[i] = attrs
	}
	return out, nil
}

// Fetch loads the list endpoint and replaces all members with the parsed
// response, in server order. On any failure the previous members are kept.
// If another Fetch was issued while this one was in flight, this one's
// response is discarded and ErrSuperseded is returned.
func (c *Collection) Fetch(ctx context.Context) error {
	c.mu.Lock()
	client, url := c.client, c.url
	if client == nil {
		c.mu.Unlock()
		return ErrNoClient
	}
	if url == "" {
		c.mu.Unlock()
		return ErrNoURL
	}
	c.gen++
	gen := c.gen
	c.pending = gen
	c.mu.Unlock()

	start := time.Now()
	c.logger.Debug("fetching", "url", url)
	models, err := c.load(ctx, client, url)
	if err != nil {
		c.finish(gen)
		c.observer.OnError(c.schema.Name, OpList, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Warn("discarding superseded response", "url", url)
		c.observer.OnSuperseded(c.schema.Name, OpList)
		return ErrSuperseded
	}
	old := c.swap(models)
	c.pending = 0
	c.populated = true
	c.mu.Unlock()

	release(old, c)
	c.observer.OnList(c.schema.Name, url, len(models), time.Since(start))
	return nil
}

func (c *Collection) load(ctx context.Context, client fetch.Client, url string) ([]*Model, error) {
	resp, err := client.Do(ctx, &fetch.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, err
	}
	raw, err := decodeObject(c.schema.Name, resp.Body)
	if err != nil {
		return nil, err
	}
	parsed, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	models := make([]*Model, len(parsed))
	for i, attrs := range parsed {
		models[i] = c.member(attrs)
	}
	return models, nil
}

// finish clears the in-flight marker if gen is still the newest fetch.
func (c *Collection) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == gen {
		c.pending = 0
	}
}

func (c *Collection) member(attrs map[string]any) *Model {
	m := newModel(c.schema, attrs)
	m.owner = c
	m.logger = c.logger.With("cid", m.cid)
	m.observer = c.observer
	return m
}

// swap installs models as the member list and returns the previous list.
// Callers hold c.mu.
func (c *Collection) swap(models []*Model) []*Model {
	if c.less != nil {
		slices.SortStableFunc(models, c.less)
	}
	old := c.models
	c.models = models
	return old
}

// release clears the owner of models that are no longer members of c.
func release(models []*Model, c *Collection) {
	for _, m := range models {
		if m.Collection() == c {
			m.setOwner(nil)
		}
	}
}

// adopt makes c the owner of models, removing them from any other
// collection they belong to.
func adopt(models []*Model, c *Collection) {
	for _, m := range models {
		if prev := m.Collection(); prev != nil && prev != c {
			prev.Remove(m)
		}
		m.setOwner(c)
	}
}

// NewModel creates a model bound to the collection (sharing its client and
// URL) without adding it as a member.
func (c *Collection) NewModel(attrs map[string]any) *Model {
	return c.member(attrs)
}

// Add appends models, keeping comparator order if one is configured.
// Models of another schema are rejected.
func (c *Collection) Add(models ...*Model) error {
	for _, m := range models {
		if m.schema != c.schema {
			return fmt.Errorf("cannot add %s model to %s collection", m.schema.Name, c.schema.Name)
		}
	}
	c.mu.Lock()
	next := slices.Clone(c.models)
	for _, m := range models {
		if !slices.Contains(next, m) {
			next = append(next, m)
		}
	}
	c.swap(next)
	c.populated = true
	c.mu.Unlock()

	adopt(models, c)
	return nil
}

// Remove drops m from the collection and releases it. It reports whether
// m was a member.
func (c *Collection) Remove(m *Model) bool {
	c.mu.Lock()
	i := slices.Index(c.models, m)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.models = slices.Delete(slices.Clone(c.models), i, i+1)
	c.mu.Unlock()

	release([]*Model{m}, c)
	return true
}

// Reset replaces all members at once.
func (c *Collection) Reset(models []*Model) error {
	for _, m := range models {
		if m.schema != c.schema {
			return fmt.Errorf("cannot add %s model to %s collection", m.schema.Name, c.schema.Name)
		}
	}
	c.mu.Lock()
	old := c.swap(slices.Clone(models))
	c.populated = true
	c.mu.Unlock()

	release(old, c)
	adopt(models, c)
	return nil
}

// Create builds a model from attrs, saves it through the collection's
// client and adds it once the server accepted it.
func (c *Collection) Create(ctx context.Context, attrs map[string]any) (*Model, error) {
	m := c.member(attrs)
	m.SetAll(attrs)
	if err := m.Save(ctx); err != nil {
		m.setOwner(nil)
		return nil, err
	}
	if err := c.Add(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Reduce folds fn over a snapshot of c's members, left to right.
func Reduce[T any](c *Collection, fn func(acc T, m *Model) T, initial T) T {
	acc := initial
	for _, m := range c.Models() {
		acc = fn(acc, m)
	}
	return acc
}

// Filter returns the members for which keep returns true, in order.
func Filter(c *Collection, keep func(m *Model) bool) []*Model {
	var out []*Model
	for _, m := range c.Models() {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// IsIndexError reports whether err is an *IndexError.
func IsIndexError(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}
