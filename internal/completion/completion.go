package completion

import (
	"context"
	"fmt"
)

// NoSQLReturned is returned by Complete when the provider answered without
// any message content.
const NoSQLReturned = "No SQL returned."

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// UpstreamError reports a failed call to the completion provider.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status=%d body=%s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
