package publisher

import (
	"context"

	"github.com/aleveille/graphout/metric"
	"github.com/aleveille/graphout/transformer"
)

type transformingPublisher struct {
	transformer transformer.ValueTransformer
	target      Publisher
}

// NewTransformingPublisher rewrites every value through t before handing the
// batch to target. The caller's samples are not modified.
func NewTransformingPublisher(t transformer.ValueTransformer, target Publisher) Publisher {
	return &transformingPublisher{transformer: t, target: target}
}

func (p *transformingPublisher) Start() error { return p.target.Start() }
func (p *transformingPublisher) Stop() error  { return p.target.Stop() }

func (p *transformingPublisher) ValidateSetup(server metric.Server, query metric.Query) error {
	return p.target.ValidateSetup(server, query)
}

func (p *transformingPublisher) Write(ctx context.Context, server metric.Server, query metric.Query, samples []*metric.Sample) error {
	return p.target.Write(ctx, server, query, transformer.ApplyAll(p.transformer, samples))
}
