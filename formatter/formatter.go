package formatter

import (
	"io"

	"github.com/aleveille/graphout/metric"
)

// Formatter encodes a batch of samples onto a text stream. It does not flush
// the stream: the publisher owning the stream decides when bytes leave.
type Formatter interface {
	// ValidateSetup checks that the server and query carry what Format needs.
	ValidateSetup(server metric.Server, query metric.Query) error

	// Format writes every value of every sample to w. An error means w may
	// hold a partial line.
	Format(w io.Writer, server metric.Server, query metric.Query, samples []*metric.Sample) error
}
