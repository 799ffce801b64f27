package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

const sample = `
server:
  host: kafka-1.local
  port: 9999
query:
  obj: "kafka.server:type=BrokerTopicMetrics,name=BytesInPerSec"
  typeNames: [name]
writers:
  - host: graphite.local
    port: 2003
    booleanAsNumber: true
    resultTags: [objDomain]
  - type: stdout
    poolSize: 4
    rootPrefix: jmx
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphout.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	assert.NilError(t, err)

	assert.Equal(t, cfg.Server.Host, "kafka-1.local")
	assert.Equal(t, cfg.Server.Port, 9999)
	assert.DeepEqual(t, cfg.Query.TypeNames, []string{"name"})
	assert.Equal(t, len(cfg.Writers), 2)

	w := cfg.Writers[0]
	assert.Equal(t, w.Type, TypeGraphite)
	assert.Equal(t, w.Address(), "graphite.local:2003")
	assert.Equal(t, w.PoolSize, 1)
	assert.Equal(t, w.SocketTimeout(), 200*time.Millisecond)
	assert.Equal(t, w.WriteTimeout(), time.Second)
	assert.Equal(t, w.ClaimTimeout(), time.Second)
	assert.Equal(t, w.Charset, "UTF-8")
	assert.Equal(t, w.RootPrefix, "servers")
	assert.Assert(t, w.BooleanAsNumber)

	w = cfg.Writers[1]
	assert.Equal(t, w.Type, TypeStdout)
	assert.Equal(t, w.PoolSize, 4)
	assert.Equal(t, w.RootPrefix, "jmx")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading configuration")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("writers: ["))
	assert.ErrorContains(t, err, "parsing configuration")
}

func TestParseRequiresWriters(t *testing.T) {
	_, err := Parse([]byte("server: {alias: app1}\n"))
	assert.Assert(t, errors.Is(err, ErrInvalid))
}

func TestWriterValidation(t *testing.T) {
	cases := []struct {
		name   string
		writer WriterConfig
		msg    string
	}{
		{name: "missing host", writer: WriterConfig{Port: 2003}, msg: "host is required"},
		{name: "missing port", writer: WriterConfig{Host: "localhost"}, msg: "port is required"},
		{name: "port out of range", writer: WriterConfig{Host: "localhost", Port: 70000}, msg: "out of range"},
		{name: "unknown type", writer: WriterConfig{Type: "pickle"}, msg: `unknown writer type "pickle"`},
		{name: "bad pool size", writer: WriterConfig{Host: "localhost", Port: 2003, PoolSize: -1}, msg: "poolSize"},
		{name: "negative timeout", writer: WriterConfig{Host: "localhost", Port: 2003, ClaimTimeoutMillis: -5}, msg: "timeouts"},
		{name: "bad result tag", writer: WriterConfig{Host: "localhost", Port: 2003, ResultTags: []string{"color"}}, msg: "color"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.writer
			w.ApplyDefaults()
			err := w.Validate()
			assert.Assert(t, errors.Is(err, ErrInvalid))
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestNonNetworkWritersNeedNoAddress(t *testing.T) {
	for _, typ := range []string{TypeStdout, TypeNull} {
		w := WriterConfig{Type: typ}
		w.ApplyDefaults()
		assert.NilError(t, w.Validate())
	}
}

func TestParseReportsWriterIndex(t *testing.T) {
	_, err := Parse([]byte("writers:\n  - type: \"null\"\n  - host: localhost\n"))
	assert.ErrorContains(t, err, "writers[1]")
	assert.Assert(t, errors.Is(err, ErrInvalid))
}
