package resource

import (
	"maps"
	"slices"
)

// Record is a nested sub-object stored as a single attribute value, such as
// a diff file's {id, revision} reference. It lives and dies with the owning
// attribute and is never tracked as a separate resource.
type Record map[string]any

// Int returns the integer stored under key, or 0 when it is missing or not an int.
func (r Record) Int(key string) int {
	v, _ := r[key].(int)
	return v
}

// String returns the string stored under key, or "" when missing.
func (r Record) String(key string) string {
	v, _ := r[key].(string)
	return v
}

// Attributes holds the current values of one model. Absence of a key is
// distinct from a key explicitly set to nil.
//
// Attributes is not safe for concurrent use; Model serializes access.
type Attributes map[string]any

// NewAttributes returns an empty store.
func NewAttributes() Attributes {
	return make(Attributes)
}

// Get returns the value for name, or nil when unset.
func (a Attributes) Get(name string) any {
	return a[name]
}

// Lookup returns the value for name and whether the key is present.
func (a Attributes) Lookup(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// Has reports whether name is present, even if its value is nil.
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Set overwrites the value for name, creating the key if absent.
// Records and slices are stored by reference.
func (a Attributes) Set(name string, value any) {
	a[name] = value
}

// Delete removes name from the store.
func (a Attributes) Delete(name string) {
	delete(a, name)
}

// Len returns the number of keys.
func (a Attributes) Len() int {
	return len(a)
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	return slices.Sorted(maps.Keys(a))
}

// ToMap returns a shallow snapshot of all name/value pairs.
func (a Attributes) ToMap() map[string]any {
	return maps.Clone(map[string]any(a))
}

// Clone returns a shallow copy of the store.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return NewAttributes()
	}
	return maps.Clone(a)
}

// merge copies every key of src into a.
func (a Attributes) merge(src Attributes) {
	maps.Copy(a, src)
}
