package concourse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// EndEventType is the type of the event that marks the end of a build's events.
// The server keeps the connection open after sending it.
const EndEventType = "end"

// Build event types carried in BuildEvent.Event.
const (
	BuildEventLog            = "log"
	BuildEventStatus         = "status"
	BuildEventError          = "error"
	BuildEventInitializeTask = "initialize-task"
	BuildEventStartTask      = "start-task"
	BuildEventFinishTask     = "finish-task"
)

var endMarker = []byte("event: " + EndEventType)

// Event is one server-sent event.
type Event struct {
	ID   string
	Type string
	Data string
}

// IsEnd reports whether e is the end-of-stream marker.
func (e Event) IsEnd() bool {
	return e.Type == EndEventType
}

// Decode parses the event data as a build event.
func (e Event) Decode() (*BuildEvent, error) {
	if e.Data == "" {
		return nil, fmt.Errorf("concourse: %s event %q has no data", e.Type, e.ID)
	}
	var be BuildEvent
	if err := json.Unmarshal([]byte(e.Data), &be); err != nil {
		return nil, fmt.Errorf("concourse: decode event %q: %w", e.ID, err)
	}
	return &be, nil
}

// BuildEvent is the envelope of every build event.
type BuildEvent struct {
	Event   string          `json:"event"`
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EventOrigin identifies the step that produced an event.
type EventOrigin struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`
}

// LogEvent is a chunk of step output.
type LogEvent struct {
	Time    int64       `json:"time"`
	Origin  EventOrigin `json:"origin"`
	Payload string      `json:"payload"`
}

// StatusEvent reports a build status change.
type StatusEvent struct {
	Time   int64       `json:"time"`
	Status BuildStatus `json:"status"`
}

// ErrorEvent reports a step failure that is not the step's own exit status.
type ErrorEvent struct {
	Time    int64       `json:"time"`
	Origin  EventOrigin `json:"origin"`
	Message string      `json:"message"`
}

// Log decodes a log event.
func (e *BuildEvent) Log() (*LogEvent, error) {
	var out LogEvent
	return &out, e.decodeAs(BuildEventLog, &out)
}

// Status decodes a status event.
func (e *BuildEvent) Status() (*StatusEvent, error) {
	var out StatusEvent
	return &out, e.decodeAs(BuildEventStatus, &out)
}

// Failure decodes an error event.
func (e *BuildEvent) Failure() (*ErrorEvent, error) {
	var out ErrorEvent
	return &out, e.decodeAs(BuildEventError, &out)
}

func (e *BuildEvent) decodeAs(kind string, v any) error {
	if e.Event != kind {
		return fmt.Errorf("concourse: event is %q, not %q", e.Event, kind)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("concourse: decode %s event: %w", kind, err)
	}
	return nil
}

// EventStream is a live build event stream. The server never closes it, so the
// caller stops reading once it has seen what it needs and calls Close.
//
// Raw bytes are available through Read; Next, Event and Err iterate over parsed
// events. Both views share one buffer and may be mixed only at event boundaries.
type EventStream struct {
	StatusCode int
	Header     http.Header

	body   io.ReadCloser
	cancel context.CancelFunc
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool

	current Event
	err     error
	ended   bool
}

func newEventStream(resp *http.Response, cancel context.CancelFunc) *EventStream {
	return &EventStream{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		body:       resp.Body,
		cancel:     cancel,
		reader:     bufio.NewReaderSize(resp.Body, 64*1024),
	}
}

// Read reads raw stream bytes. After Close it returns io.EOF.
func (s *EventStream) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if err != nil && s.closed.Load() {
		err = io.EOF
	}
	return n, err
}

// Close tears down the connection. It is safe to call more than once and from
// another goroutine while a Read is blocked.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if err := s.body.Close(); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// Next advances to the next event. It returns the end event once and then false.
// It also returns false when the stream fails or is closed; Err tells them apart.
func (s *EventStream) Next() bool {
	if s.ended || s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		id, eventType string
		dataLines     []string
		hasData       bool
	)

	dispatch := func() bool {
		s.current = Event{ID: id, Type: eventType, Data: strings.Join(dataLines, "\n")}
		if s.current.IsEnd() {
			s.ended = true
		}
		return true
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			switch {
			case s.closed.Load():
				return false
			case errors.Is(err, io.EOF):
				if eventType == EndEventType {
					return dispatch()
				}
				s.err = io.ErrUnexpectedEOF
				return false
			default:
				s.err = err
				return false
			}
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData || eventType != "" {
				return dispatch()
			}
			id = ""
			continue
		}

		// comment
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			id = value
		}
	}
}

// Event returns the event read by the last successful Next.
func (s *EventStream) Event() Event {
	return s.current
}

// Err returns the error that stopped Next. It is nil after the end event and
// after the caller closed the stream. A server disconnect before the end event
// is io.ErrUnexpectedEOF.
func (s *EventStream) Err() error {
	return s.err
}

// ReadUntilEnd reads raw bytes until the end marker arrives, closes the stream
// and returns everything read. Cancelling ctx closes the stream and returns
// ctx's error with the bytes read so far.
func (s *EventStream) ReadUntilEnd(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer s.Close()

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		searchFrom := max(buf.Len()-len(endMarker)-1, 0)
		n, err := s.Read(chunk)
		buf.Write(chunk[:n])

		if hasEndMarker(buf.Bytes(), searchFrom) {
			return buf.Bytes(), nil
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return buf.Bytes(), ctxErr
			}
			if errors.Is(err, io.EOF) {
				return buf.Bytes(), io.ErrUnexpectedEOF
			}
			return buf.Bytes(), err
		}
	}
}

// hasEndMarker looks for an "event: end" line that starts at or after from.
func hasEndMarker(b []byte, from int) bool {
	for {
		i := bytes.Index(b[from:], endMarker)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(endMarker)
		if end >= len(b) {
			// The line terminator has not arrived yet.
			return false
		}
		if (start == 0 || b[start-1] == '\n') && (b[end] == '\n' || b[end] == '\r') {
			return true
		}
		from = start + 1
	}
}
