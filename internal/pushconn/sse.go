package pushconn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// SSEDialer connects to a Server-Sent Events endpoint.
type SSEDialer struct {
	URL string
	// Client must not set a Timeout; the stream is long-lived. Nil uses
	// a client without timeout.
	Client *http.Client
	Header http.Header
}

var streamClient = &http.Client{}

// Dial issues the GET and returns once response headers arrive.
func (d *SSEDialer) Dial(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build event stream request: %w", err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	client := d.Client
	if client == nil {
		client = streamClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("open event stream: unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	return &sseStream{body: resp.Body, scanner: newSSEScanner(resp.Body)}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *sseScanner
}

func (s *sseStream) Recv() ([]byte, error) {
	for s.scanner.Next() {
		ev := s.scanner.Event()
		if ev.Data == "" {
			continue
		}
		return []byte(ev.Data), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error { return s.body.Close() }

// sseEvent is one dispatched Server-Sent Event.
type sseEvent struct {
	Type string
	ID   string
	Data string
}

// sseScanner reads events delimited by blank lines. Data lines are
// joined with "\n"; comments and unknown fields are ignored.
type sseScanner struct {
	reader  *bufio.Reader
	current sseEvent
	err     error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (s *sseScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = sseEvent{}

	var (
		data    []string
		ev      sseEvent
		hasData bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			// An event not terminated by a blank line is incomplete.
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				ev.Data = strings.Join(data, "\n")
				s.current = ev
				return true
			}
			ev = sseEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		}
	}
}

func (s *sseScanner) Event() sseEvent { return s.current }

// Err returns the read error that ended scanning, or nil on clean EOF.
func (s *sseScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
