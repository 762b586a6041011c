// Package sse reads server-sent event streams the way the provider APIs
// emit them: optional "event:" name lines, one or more "data:" lines per
// event, events separated by blank lines, comments ignored.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one parsed server-sent event.
type Event struct {
	// Name is the "event:" field, empty for unnamed events.
	Name string
	// Data is the joined "data:" payload.
	Data []byte
}

// IsDone reports the OpenAI-style "[DONE]" terminator.
func (e Event) IsDone() bool {
	return string(e.Data) == "[DONE]"
}

// Scanner yields events from a stream in delivery order. It performs no
// reordering or buffering beyond line assembly.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps a response body. The caller retains ownership of the
// reader and closes it.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF after the final event; any
// other error means the connection dropped mid-stream and the caller should
// treat accumulated state as a partial outcome.
func (s *Scanner) Next() (Event, error) {
	var name string
	var data []string

	flush := func() (Event, bool) {
		if len(data) == 0 {
			return Event{}, false
		}
		return Event{Name: name, Data: []byte(strings.Join(data, "\n"))}, true
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// A final event without a trailing blank line still counts.
			if err == io.EOF {
				line = strings.TrimRight(line, "\r\n")
				if after, ok := strings.CutPrefix(line, "data:"); ok {
					data = append(data, strings.TrimPrefix(after, " "))
				}
				if ev, ok := flush(); ok {
					return ev, nil
				}
			}
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev, ok := flush(); ok {
				return ev, nil
			}
			name = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(after, " "))
		}
	}
}
