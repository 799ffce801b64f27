package publisher

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aleveille/graphout/metric"
)

var (
	ErrSetup      = errors.New("publisher setup failed")
	ErrValidation = errors.New("invalid server or query")
	ErrNotStarted = errors.New("publisher is not started")
)

// Publisher sends batches of samples somewhere. Start and Stop bracket the
// lifetime of the underlying resources; Write may be called concurrently
// between them.
type Publisher interface {
	Start() error
	Stop() error
	ValidateSetup(server metric.Server, query metric.Query) error
	Write(ctx context.Context, server metric.Server, query metric.Query, samples []*metric.Sample) error
}

// UnavailableError means no connection to the destination could be obtained.
// The batch itself is fine and can be retried.
type UnavailableError struct {
	Addr string
	Err  error
}

func (e *UnavailableError) Error() string {
	return "destination " + e.Addr + " is unavailable, check that the server is up and reachable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }
