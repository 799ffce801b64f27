package metric

import "strconv"

// Field is one named value of a sample. Fields keep the order the source
// produced them in.
type Field struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Sample is one observation of a managed object attribute. Samples are never
// mutated once created: transformations build a new Sample.
type Sample struct {
	EpochMillis   int64   `json:"epoch"`
	AttributeName string  `json:"attributeName"`
	ClassName     string  `json:"className"`
	ObjDomain     string  `json:"objDomain"`
	KeyAlias      string  `json:"keyAlias,omitempty"`
	TypeName      string  `json:"typeName"`
	Values        []Field `json:"values"`
}

// WithValues returns a copy of s carrying the given values.
func (s *Sample) WithValues(values []Field) *Sample {
	c := *s
	c.Values = values
	return &c
}

// Server identifies the server a batch of samples was collected from.
// Its alias, or host and port, names the series.
type Server struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Alias string `yaml:"alias"`
}

func (s Server) String() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// Query holds the per-query flags that drive key construction.
type Query struct {
	// Obj is the raw object name the type name tokens are extracted from,
	// eg: java.lang:type=GarbageCollector,name=G1
	Obj               string   `yaml:"obj"`
	TypeNames         []string `yaml:"typeNames"`
	UseObjDomainAsKey bool     `yaml:"useObjDomainAsKey"`
	AllowDottedKeys   bool     `yaml:"allowDottedKeys"`
	UseAllTypeNames   bool     `yaml:"useAllTypeNames"`
}
