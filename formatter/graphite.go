package formatter

// references:
//  - https://graphite.readthedocs.io/en/latest/tags.html
//  - https://graphite.readthedocs.io/en/latest/feeding-carbon.html
//    - <metric path> <metric value> <metric timestamp>
//    - <metric path[;tag1=value1;tag2=value2;...]> <metric value> <metric timestamp>

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/aleveille/graphout/metric"
)

// GraphiteSettings are the writer-level key construction settings. Flags set
// here apply on top of the query's own flags.
type GraphiteSettings struct {
	RootPrefix        string
	TypeNames         []string
	AllowDottedKeys   bool
	UseObjDomainAsKey bool
	UseAllTypeNames   bool
	ResultTags        []metric.Attribute
}

type graphite struct {
	settings GraphiteSettings
}

func NewGraphiteFormatter(settings GraphiteSettings) Formatter {
	if settings.RootPrefix == "" {
		settings.RootPrefix = DefaultRootPrefix
	}
	return &graphite{settings: settings}
}

func (f *graphite) ValidateSetup(server metric.Server, query metric.Query) error {
	if server.Alias == "" && server.Host == "" {
		return errors.New("server needs a host or an alias")
	}
	if server.Alias == "" && server.Port <= 0 {
		return errors.New("server without alias needs a port")
	}
	return nil
}

// Format according to Carbon plaintext protocol:
// metric_path value timestamp\n
func (f *graphite) Format(w io.Writer, server metric.Server, query metric.Query, samples []*metric.Sample) error {
	q := f.mergeQuery(query)

	var sb strings.Builder
	for _, s := range samples {
		if s == nil {
			continue
		}
		tags := f.FormatTags(s)
		for _, l := range BuildLines(f.settings.RootPrefix, server, q, s) {
			l.Tags = tags
			sb.Reset()
			sb.WriteString(l.String())
			sb.WriteByte('\n')
			log.Tracef("graphite: %s", l)
			if _, err := io.WriteString(w, sb.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *graphite) mergeQuery(query metric.Query) metric.Query {
	q := query
	q.AllowDottedKeys = q.AllowDottedKeys || f.settings.AllowDottedKeys
	q.UseObjDomainAsKey = q.UseObjDomainAsKey || f.settings.UseObjDomainAsKey
	q.UseAllTypeNames = q.UseAllTypeNames || f.settings.UseAllTypeNames

	q.TypeNames = make([]string, 0, len(query.TypeNames)+len(f.settings.TypeNames))
	for _, names := range [2][]string{query.TypeNames, f.settings.TypeNames} {
		for _, n := range names {
			if !slices.Contains(q.TypeNames, n) {
				q.TypeNames = append(q.TypeNames, n)
			}
		}
	}
	return q
}

var tagValueCleaner = strings.NewReplacer(";", "_", "~", "_", " ", "_", "\t", "_", "\n", "_", "\r", "_")

// FormatTags renders the configured sample attributes into Carbon (Graphite) tag format: ;<tag-key>=<tag-value>;...
// Attributes with an empty value are left out, carbon rejects empty tags.
func (f *graphite) FormatTags(s *metric.Sample) string {
	if len(f.settings.ResultTags) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, a := range f.settings.ResultTags {
		v := tagValueCleaner.Replace(a.Get(s))
		if v == "" {
			continue
		}
		sb.WriteString(";")
		sb.WriteString(a.String())
		sb.WriteString("=")
		sb.WriteString(v)
	}
	return sb.String()
}
