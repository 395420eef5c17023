package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransportError is returned when a request could not be completed: the
// connection failed, the context expired, or the server replied with a
// non-2xx status.
type TransportError struct {
	Method string
	URL    string
	// StatusCode is 0 when no response was received.
	StatusCode int
	// Code and Message come from a {"stat": "fail", "err": {...}} body.
	Code    int
	Message string
	// Err is the underlying network error, if any.
	Err error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
		if e.Code != 0 {
			msg += fmt.Sprintf(" (code %d)", e.Code)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request failed because a deadline passed.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 TransportError.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// failureEnvelope is the body Review Board sends with error statuses.
type failureEnvelope struct {
	Stat string `json:"stat"`
	Err  struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"err"`
	// Generic JSON error bodies.
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorFromResponse converts a non-2xx reply into a *TransportError, or
// returns nil for a 2xx reply.
func ErrorFromResponse(req *Request, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	te := &TransportError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: statusCode,
	}
	var env failureEnvelope
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Stat == "fail":
			te.Code = env.Err.Code
			te.Message = env.Err.Msg
		case env.Message != "":
			te.Message = env.Message
		case env.Error != "":
			te.Message = env.Error
		}
	}
	return te
}
