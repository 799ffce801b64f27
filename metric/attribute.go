package metric

import "github.com/pkg/errors"

// Attribute enumerates the identity fields of a Sample that writers may
// export alongside values, eg: as graphite tags.
type Attribute int

const (
	AttrTypeName Attribute = iota
	AttrObjDomain
	AttrClassName
	AttrAttributeName
)

var attributeNames = [...]string{
	AttrTypeName:      "typeName",
	AttrObjDomain:     "objDomain",
	AttrClassName:     "className",
	AttrAttributeName: "attributeName",
}

func (a Attribute) String() string {
	if a < 0 || int(a) >= len(attributeNames) {
		return "unknown"
	}
	return attributeNames[a]
}

// Get returns the field of s the attribute designates.
func (a Attribute) Get(s *Sample) string {
	switch a {
	case AttrTypeName:
		return s.TypeName
	case AttrObjDomain:
		return s.ObjDomain
	case AttrClassName:
		return s.ClassName
	case AttrAttributeName:
		return s.AttributeName
	}
	return ""
}

// ParseAttribute maps a configured name back to its Attribute.
func ParseAttribute(name string) (Attribute, error) {
	for i, n := range attributeNames {
		if n == name {
			return Attribute(i), nil
		}
	}
	return 0, errors.Errorf("unknown result attribute %q", name)
}

// ParseAttributes maps each configured name, failing on the first unknown one.
func ParseAttributes(names []string) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(names))
	for _, n := range names {
		a, err := ParseAttribute(n)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}
