package metric

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

const maxLineSize = 1 << 20

// DecodeSamples reads one JSON sample per line. Blank lines are skipped.
func DecodeSamples(r io.Reader) ([]*Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var samples []*Sample
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s := &Sample{}
		if err := json.Unmarshal(line, s); err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading samples")
	}
	return samples, nil
}
