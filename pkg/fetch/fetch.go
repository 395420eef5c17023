// Package fetch defines the transport capability the resource layer depends
// on, and an net/http implementation of it for Review Board style JSON APIs.
//
// The resource layer never builds a transport itself. It is handed a Client,
// issues a Request through it, and receives either the raw response body or
// an error. Tests inject a scripted Client (see fetchtest); deployments use
// HTTPClient.
package fetch

import (
	"context"
	"net/http"
)

// Request describes one call against the API.
type Request struct {
	// Method is the HTTP verb (GET, POST, PUT, DELETE).
	Method string
	// URL is either absolute or a path resolved against the client's base URL.
	URL string
	// Body is JSON-encoded when non-nil.
	Body any
	// Header carries extra request headers.
	Header http.Header
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs requests. A returned error means the request failed; the
// response is only non-nil on success. Implementations report non-2xx
// replies as *TransportError.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req).
func (f ClientFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Get is shorthand for a GET request through c.
func Get(ctx context.Context, c Client, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}
