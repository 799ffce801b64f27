package publisher

import (
	"github.com/aleveille/graphout/config"
	"github.com/aleveille/graphout/formatter"
	"github.com/aleveille/graphout/metric"
	"github.com/aleveille/graphout/transformer"
)

// New builds the publisher a writer configuration describes: the formatter,
// the transport for its type and the boolean transformation in front.
// Invalid configurations are rejected here, before anything is started.
// Options given by the caller win over the configured ones.
func New(cfg config.WriterConfig, opts ...Option) (Publisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tags, err := metric.ParseAttributes(cfg.ResultTags)
	if err != nil {
		return nil, err
	}

	f := formatter.NewGraphiteFormatter(formatter.GraphiteSettings{
		RootPrefix:        cfg.RootPrefix,
		TypeNames:         cfg.TypeNames,
		AllowDottedKeys:   cfg.AllowDottedKeys,
		UseObjDomainAsKey: cfg.UseObjDomainAsKey,
		UseAllTypeNames:   cfg.UseAllTypeNames,
		ResultTags:        tags,
	})

	var target Publisher
	switch cfg.Type {
	case config.TypeGraphite:
		configured := []Option{
			WithPoolSize(cfg.PoolSize),
			WithSocketTimeout(cfg.SocketTimeout()),
			WithWriteTimeout(cfg.WriteTimeout()),
			WithClaimTimeout(cfg.ClaimTimeout()),
			WithCharset(cfg.Charset),
		}
		target = NewTcpPublisher(cfg.Address(), f, append(configured, opts...)...)
	case config.TypeStdout:
		o := defaultOptions()
		for _, opt := range opts {
			opt(&o)
		}
		target = NewLogPublisher(f, o.out)
	default:
		target = NewNullPublisher()
	}

	return NewTransformingPublisher(transformer.ForBooleanAsNumber(cfg.BooleanAsNumber), target), nil
}
