package mcp

import (
	"fmt"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// toolError converts an internal error into the client-facing form:
// the stable code plus a path-sanitized message. Developer detail goes
// to the log, never to the client.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	se, ok := err.(*errors.SearchError)
	if !ok {
		return fmt.Errorf("%s: %s", errors.ErrCodeInternal, "internal error")
	}
	return fmt.Errorf("%s: %s", se.Code, errors.UserMessage(se))
}
