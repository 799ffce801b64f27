package publisher

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/aleveille/graphout/formatter"
	"github.com/aleveille/graphout/metric"
)

type logPublisher struct {
	target formatter.Formatter

	mu  sync.Mutex
	out *bufio.Writer
}

// NewLogPublisher prints the formatted lines to out instead of sending them.
func NewLogPublisher(target formatter.Formatter, out io.Writer) Publisher {
	return &logPublisher{target: target, out: bufio.NewWriter(out)}
}

func (p *logPublisher) Start() error { return nil }

func (p *logPublisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Flush()
}

func (p *logPublisher) ValidateSetup(server metric.Server, query metric.Query) error {
	if err := p.target.ValidateSetup(server, query); err != nil {
		return errors.Wrap(ErrValidation, err.Error())
	}
	return nil
}

func (p *logPublisher) Write(ctx context.Context, server metric.Server, query metric.Query, samples []*metric.Sample) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.target.Format(p.out, server, query, samples); err != nil {
		return err
	}
	return p.out.Flush()
}
