package transformer

import "github.com/aleveille/graphout/metric"

// ValueTransformer maps one sample value to another. Implementations are
// stateless and safe for concurrent use.
type ValueTransformer interface {
	Transform(v metric.Value) metric.Value
}

// Func adapts a plain function to a ValueTransformer.
type Func func(v metric.Value) metric.Value

func (f Func) Transform(v metric.Value) metric.Value { return f(v) }

type identity struct{}

// Identity returns every value unchanged.
func Identity() ValueTransformer {
	return identity{}
}

func (identity) Transform(v metric.Value) metric.Value { return v }

type booleanToNumber struct {
	trueValue  metric.Value
	falseValue metric.Value
}

// BooleanToNumber replaces booleans by the given numbers. Other values pass
// through unchanged.
func BooleanToNumber(trueValue, falseValue metric.Value) ValueTransformer {
	return booleanToNumber{trueValue: trueValue, falseValue: falseValue}
}

func (t booleanToNumber) Transform(v metric.Value) metric.Value {
	b, ok := v.AsBool()
	if !ok {
		return v
	}
	if b {
		return t.trueValue
	}
	return t.falseValue
}

// ForBooleanAsNumber picks the transformer for the booleanAsNumber setting:
// true→1 and false→0 when set, Identity otherwise.
func ForBooleanAsNumber(booleanAsNumber bool) ValueTransformer {
	if booleanAsNumber {
		return BooleanToNumber(metric.Int(1), metric.Int(0))
	}
	return Identity()
}

// Apply returns a new sample whose values went through t. The input sample
// is left untouched so that it can be handed to another writer or retried.
func Apply(t ValueTransformer, s *metric.Sample) *metric.Sample {
	if s == nil {
		return nil
	}
	values := make([]metric.Field, len(s.Values))
	for i, f := range s.Values {
		values[i] = metric.Field{Key: f.Key, Value: t.Transform(f.Value)}
	}
	return s.WithValues(values)
}

// ApplyAll transforms a whole batch.
func ApplyAll(t ValueTransformer, samples []*metric.Sample) []*metric.Sample {
	out := make([]*metric.Sample, 0, len(samples))
	for _, s := range samples {
		if s == nil {
			continue
		}
		out = append(out, Apply(t, s))
	}
	return out
}
