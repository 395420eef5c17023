// Package resource binds REST API JSON payloads to in-memory resource models
// and ordered collections of them.
//
// A resource type is described once by a Schema: a declarative mapping table
// from wire keys (snake_case, as the server sends them) to canonical attribute
// names, plus the rules used to serialize attributes back into a request body.
// Schemas are validated when they are built, so a typo in a JSONPath, a
// derived-attribute expression, or the embedded JSON Schema fails at package
// init rather than on the first response.
//
// Core Types:
//
//   - Attributes: the key/value store holding one model's current values
//   - Schema: the per-resource mapping table (Field, Computed, OutField)
//   - Model: a single resource (parse, get/set with dirty tracking, toJSON, fetch/save/destroy)
//   - Collection: an ordered list of models of one schema (fetch, at, len, reduce)
//
// Envelopes:
//
// Review Board style responses wrap resources in an envelope:
//
//	{"stat": "ok", "user_file_attachment": {...}}
//	{"stat": "ok", "branches": [{...}, {...}]}
//
// Model.Parse unwraps the schema's ResourceKey when a "stat" key is present
// and treats the payload as the bare object otherwise. Collection.Fetch
// extracts the configured array key.
//
// Concurrency:
//
// Network operations never hold a lock across the transport call. Every
// Fetch/Save/Destroy takes a generation number; a response that completes
// after a newer operation was issued on the same instance is discarded and
// the call returns ErrSuperseded. Member lists are replaced by swapping the
// whole slice, so readers never observe a partially applied fetch.
//
// Usage:
//
//	branches := resource.NewCollection(branchSchema,
//	    resource.WithCollectionClient(client),
//	    resource.WithCollectionURL("/api/repositories/123/branches/"),
//	    resource.WithArrayKey("branches"),
//	)
//	if err := branches.Fetch(ctx); err != nil {
//	    return err
//	}
//	first, _ := branches.At(0)
//	fmt.Println(first.Get("name"))
package resource
