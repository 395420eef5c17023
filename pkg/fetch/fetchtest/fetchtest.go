// Package fetchtest provides a scripted fetch.Client for tests.
package fetchtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/getmockd/resourcebind/pkg/fetch"
)

// Reply is one canned response.
type Reply struct {
	// Status defaults to 200.
	Status int
	// Body is sent verbatim when it is []byte or string, JSON-encoded otherwise.
	Body any
	// Err, when set, is returned instead of a response.
	Err error
	// Gate, when set, holds the reply until it is closed or the context ends.
	Gate <-chan struct{}
}

// JSON returns a 200 reply carrying body.
func JSON(body any) Reply {
	return Reply{Status: http.StatusOK, Body: body}
}

// Fail returns a Review Board failure envelope with the given status.
func Fail(status, code int, msg string) Reply {
	return Reply{
		Status: status,
		Body: map[string]any{
			"stat": "fail",
			"err":  map[string]any{"code": code, "msg": msg},
		},
	}
}

// Client replays scripted replies keyed by method and URL and records
// every request it receives.
type Client struct {
	mu       sync.Mutex
	routes   map[string][]Reply
	requests []fetch.Request
}

// New creates an empty scripted client.
func New() *Client {
	return &Client{routes: make(map[string][]Reply)}
}

// On queues replies for method+url. Replies are consumed in order; the last
// one keeps answering once the queue is drained.
func (c *Client) On(method, url string, replies ...Reply) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := method + " " + url
	c.routes[key] = append(c.routes[key], replies...)
	return c
}

// Requests returns a copy of every request received so far.
func (c *Client) Requests() []fetch.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]fetch.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Do implements fetch.Client.
func (c *Client) Do(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	reply, ok := c.next(req)
	if !ok {
		return nil, &fetch.TransportError{
			Method:     req.Method,
			URL:        req.URL,
			StatusCode: http.StatusNotFound,
			Message:    "no scripted reply",
		}
	}

	if reply.Gate != nil {
		select {
		case <-reply.Gate:
		case <-ctx.Done():
			return nil, &fetch.TransportError{Method: req.Method, URL: req.URL, Err: ctx.Err()}
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	body, err := encode(reply.Body)
	if err != nil {
		return nil, fmt.Errorf("fetchtest: encode reply: %w", err)
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if err := fetch.ErrorFromResponse(req, status, body); err != nil {
		return nil, err
	}
	return &fetch.Response{StatusCode: status, Header: http.Header{}, Body: body}, nil
}

func (c *Client) next(req *fetch.Request) (Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, *req)

	key := req.Method + " " + req.URL
	queue := c.routes[key]
	if len(queue) == 0 {
		return Reply{}, false
	}
	reply := queue[0]
	if len(queue) > 1 {
		c.routes[key] = queue[1:]
	}
	return reply, true
}

func encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}
