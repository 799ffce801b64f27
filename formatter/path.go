package formatter

// references:
//  - https://graphite.readthedocs.io/en/latest/feeding-carbon.html
//    - <metric path> <metric value> <metric timestamp>
//  - https://docs.oracle.com/javase/8/docs/api/javax/management/ObjectName.html

import (
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/aleveille/graphout/metric"
)

// DefaultRootPrefix is the first segment of every path.
const DefaultRootPrefix = "servers"

// Line is one carbon plaintext line.
type Line struct {
	Path  string
	Tags  string // ";k=v;..." or empty
	Value metric.Value
	Epoch int64 // seconds
}

func (l Line) String() string {
	v := l.Value.String()
	if l.Value.Kind() == metric.KindString {
		v = valueCleaner.Replace(v)
	}
	return l.Path + l.Tags + " " + v + " " + strconv.FormatInt(l.Epoch, 10)
}

var (
	// Quotes are dropped, slashes and whitespace would break the path or the line.
	dottedCleaner = strings.NewReplacer(`"`, "", "/", "_", " ", "_", "\t", "_", "\n", "_", "\r", "_")
	flatCleaner   = strings.NewReplacer(`"`, "", "/", "_", " ", "_", "\t", "_", "\n", "_", "\r", "_", ".", "_")

	// A string value must stay a single field of a single line.
	valueCleaner = strings.NewReplacer(" ", "_", "\t", "_", "\n", "_", "\r", "_")
)

func cleanup(s string, allowDots bool) string {
	if allowDots {
		return dottedCleaner.Replace(s)
	}
	return flatCleaner.Replace(s)
}

// BuildLines turns a sample into one line per value:
//   <prefix>.<server>.<keyAlias|objDomain|className>[.<type names>].<attribute>[_<key>] <value> <epoch>
// The key is only appended when the sample has several values or when it
// differs from the attribute name. It is joined with "." when dotted keys are
// allowed and with "_" otherwise.
func BuildLines(prefix string, server metric.Server, query metric.Query, s *metric.Sample) []Line {
	dotted := query.AllowDottedKeys

	segments := []string{prefix, serverSegment(server), groupingSegment(query, s)}
	segments = append(segments, typeNameSegments(query, s)...)
	base := joinSegments(segments)

	separator := "_"
	if dotted {
		separator = "."
	}
	attribute := cleanup(s.AttributeName, dotted)
	epoch := s.EpochMillis / 1000

	lines := make([]Line, 0, len(s.Values))
	for _, f := range s.Values {
		key := attribute
		if len(s.Values) > 1 || f.Key != s.AttributeName {
			key += separator + cleanup(f.Key, dotted)
		}
		lines = append(lines, Line{Path: joinSegments([]string{base, key}), Value: f.Value, Epoch: epoch})
	}
	return lines
}

func joinSegments(segments []string) string {
	var sb strings.Builder
	for _, s := range segments {
		if s == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(s)
	}
	return sb.String()
}

func serverSegment(server metric.Server) string {
	if server.Alias != "" {
		return cleanup(server.Alias, true)
	}
	return cleanup(server.Host, false) + "_" + strconv.Itoa(server.Port)
}

func groupingSegment(query metric.Query, s *metric.Sample) string {
	switch {
	case s.KeyAlias != "":
		return cleanup(s.KeyAlias, query.AllowDottedKeys)
	case query.UseObjDomainAsKey:
		return cleanup(s.ObjDomain, query.AllowDottedKeys)
	default:
		return cleanup(s.ClassName, query.AllowDottedKeys)
	}
}

func typeNameSegments(query metric.Query, s *metric.Sample) []string {
	props := parseProperties(typeNameSource(query, s))

	if query.UseAllTypeNames {
		values := make([]string, 0, len(props))
		for _, p := range props {
			if p.bare || p.value == "" {
				continue
			}
			values = append(values, p.value)
		}
		if len(values) == 0 {
			return nil
		}
		return []string{cleanup(strings.Join(values, "_"), query.AllowDottedKeys)}
	}

	segments := make([]string, 0, len(query.TypeNames))
	for _, name := range query.TypeNames {
		i := slices.IndexFunc(props, func(p property) bool { return !p.bare && p.key == name })
		if i < 0 || props[i].value == "" {
			continue
		}
		segments = append(segments, cleanup(props[i].value, query.AllowDottedKeys))
	}
	return segments
}

// typeNameSource prefers the query's object name unless it is a pattern, in
// which case only the sample knows the concrete name.
func typeNameSource(query metric.Query, s *metric.Sample) string {
	if query.Obj == "" || strings.ContainsAny(query.Obj, "*?") {
		return s.TypeName
	}
	return query.Obj
}

type property struct {
	key   string
	value string
	bare  bool // token without '=', eg: the leading type label
}

// parseProperties splits "domain:k1=v1,k2=v2" (the domain being optional)
// into its key/value properties, in order. Separators inside quotes are
// ignored and quoted values are unquoted.
func parseProperties(name string) []property {
	if i := indexOutsideQuotes(name, ':'); i >= 0 {
		name = name[i+1:]
	}

	var props []property
	for len(name) > 0 {
		token := name
		if i := indexOutsideQuotes(name, ','); i >= 0 {
			token, name = name[:i], name[i+1:]
		} else {
			name = ""
		}

		token = strings.TrimSpace(unquote(token))
		if token == "" {
			continue
		}
		k, v, found := strings.Cut(token, "=")
		if !found {
			props = append(props, property{key: token, bare: true})
			continue
		}
		props = append(props, property{key: strings.TrimSpace(k), value: strings.TrimSpace(v)})
	}
	return props
}

// unquote drops quotes and resolves the escapes allowed inside them:
// \" \\ \n \* and \?.
func unquote(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}

	var sb strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			quoted = !quoted
		case c == '\\' && quoted && i+1 < len(s):
			i++
			if s[i] == 'n' {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(s[i])
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func indexOutsideQuotes(s string, c byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case c:
			if !quoted {
				return i
			}
		}
	}
	return -1
}
