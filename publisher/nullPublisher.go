package publisher

import (
	"context"

	"github.com/aleveille/graphout/metric"
)

type nullPublisher struct {
}

// NewNullPublisher discards everything.
func NewNullPublisher() Publisher {
	return &nullPublisher{}
}

func (p *nullPublisher) Start() error { return nil }
func (p *nullPublisher) Stop() error  { return nil }

func (p *nullPublisher) ValidateSetup(server metric.Server, query metric.Query) error {
	return nil
}

func (p *nullPublisher) Write(ctx context.Context, server metric.Server, query metric.Query, samples []*metric.Sample) error {
	return nil
}
