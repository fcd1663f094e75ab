package gemini

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELine bounds a single SSE line; the bufio default of 64 KiB is too
// small for long grounded answers.
const maxSSELine = 1 << 20

type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseScanner{scanner: s}
}

// Next returns the next event's data payload, joining multi-line data
// fields. It returns io.EOF at the end of the stream.
func (s *sseScanner) Next() (string, error) {
	var data []string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(v))
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("gemini: read sse: %w", err)
	}
	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
