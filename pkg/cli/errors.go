package cli

import (
	"errors"
	"net/http"

	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/resource"
)

// Common CLI errors
var (
	ErrNoUsername    = errors.New("no username: pass --user or set RBIND_USERNAME")
	ErrNothingToSave = errors.New("nothing to update: pass --caption or --file")
)

// FormatError renders err for the terminal, with a hint when one applies.
func FormatError(err error) string {
	msg := "Error: " + err.Error()
	if hint := hintFor(err); hint != "" {
		msg += "\n  Hint: " + hint
	}
	return msg
}

func hintFor(err error) string {
	var te *fetch.TransportError
	if errors.As(err, &te) {
		switch {
		case te.Timeout():
			return "The server did not answer in time. Raise --timeout or RBIND_TIMEOUT."
		case te.StatusCode == 0:
			return "Check that the server is reachable at the configured --url."
		case te.StatusCode == http.StatusUnauthorized:
			return "Set a valid API token with --token or RBIND_TOKEN."
		case te.StatusCode == http.StatusForbidden:
			return "The API token does not grant access to this resource."
		case te.StatusCode == http.StatusNotFound:
			return "Check the resource ID and the server URL."
		}
		return ""
	}
	var pe *resource.ParseError
	if errors.As(err, &pe) {
		return pe.Hint()
	}
	if errors.Is(err, resource.ErrSuperseded) {
		return "A newer request replaced this one; run the command again."
	}
	return ""
}
