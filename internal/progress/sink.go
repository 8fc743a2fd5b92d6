package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/GeekMasher/advanced-security-compliance/internal/redact"
	"github.com/GeekMasher/advanced-security-compliance/internal/sanitize"
)

// Sink receives run events. Implementations must be safe for concurrent use:
// technologies are checked in parallel.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// Multi fans an event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range out {
			s.Emit(e)
		}
	})
}

type ChannelSink struct {
	ch chan<- Event
}

func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Emit(e Event) {
	if s == nil || s.ch == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case s.ch <- e:
	default:
		// Drop on backpressure so a slow UI cannot stall the checks.
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...)
}

// Messages returns the messages of all events of type t.
func (r *Recorder) Messages(t EventType) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e.Message)
		}
	}
	return out
}

// PlainSink writes one human readable line per event.
type PlainSink struct {
	w     io.Writer
	debug bool
	mu    sync.Mutex
}

func NewPlainSink(w io.Writer, debug bool) *PlainSink {
	return &PlainSink{w: w, debug: debug}
}

func (s *PlainSink) Emit(e Event) {
	if s == nil || s.w == nil {
		return
	}
	if e.Type == EventDebug && !s.debug {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	line := formatPlain(e)
	if line == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, redact.Text(line))
}

func formatPlain(e Event) string {
	ts := e.At.Format("15:04:05")
	msg := clean(e.Message)
	switch e.Type {
	case EventRunStarted:
		return fmt.Sprintf("[%s] run %s started", ts, e.RunID)
	case EventRunFinished:
		line := fmt.Sprintf("[%s] run %s finished status=%s violations=%d duration=%dms", ts, e.RunID, e.Status, e.ViolationCount, e.DurationMS)
		if errText := clean(e.Error); errText != "" {
			line += " error=" + errText
		}
		return line
	case EventCheckStarted:
		return fmt.Sprintf("[%s] check %s started", ts, e.Technology)
	case EventCheckFinished:
		line := fmt.Sprintf("[%s] check %s finished status=%s alerts=%d violations=%d duration=%dms", ts, e.Technology, e.Status, e.FindingCount, e.ViolationCount, e.DurationMS)
		if errText := clean(e.Error); errText != "" {
			line += " error=" + errText
		}
		return line
	case EventViolation:
		line := fmt.Sprintf("[%s] violation: %s", ts, msg)
		if file := clean(e.File); file != "" {
			line += fmt.Sprintf(" (%s:%d)", file, e.Line)
		}
		return line
	case EventInfo:
		return fmt.Sprintf("[%s] %s", ts, msg)
	case EventWarning:
		if msg == "" {
			msg = clean(e.Error)
		}
		return fmt.Sprintf("[%s] warning: %s", ts, msg)
	case EventDebug:
		return fmt.Sprintf("[%s] debug: %s", ts, msg)
	case EventGroupStarted:
		return centerTitle(msg, 64)
	default:
		return ""
	}
}

// ActionsSink writes GitHub Actions workflow commands so warnings and
// violations surface as annotations on the run.
type ActionsSink struct {
	w  io.Writer
	mu sync.Mutex
}

func NewActionsSink(w io.Writer) *ActionsSink {
	return &ActionsSink{w: w}
}

func (s *ActionsSink) Emit(e Event) {
	if s == nil || s.w == nil {
		return
	}
	line := formatActions(e)
	if line == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, redact.Text(line))
}

func formatActions(e Event) string {
	msg := sanitize.ActionsData(strings.TrimSpace(e.Message))
	switch e.Type {
	case EventGroupStarted:
		return "::group::" + msg
	case EventGroupFinished:
		return "::endgroup::"
	case EventDebug:
		return "::debug::" + msg
	case EventWarning:
		if msg == "" {
			msg = sanitize.ActionsData(strings.TrimSpace(e.Error))
		}
		return "::warning::" + msg
	case EventViolation:
		if file := strings.TrimSpace(e.File); file != "" {
			return fmt.Sprintf("::error file=%s,line=%d,col=%d::%s", sanitize.ActionsProperty(file), e.Line, e.Column, msg)
		}
		return "::error::" + msg
	case EventInfo:
		return clean(e.Message)
	case EventCheckFinished:
		line := fmt.Sprintf("%s violations :: %d (alerts: %d)", e.Technology, e.ViolationCount, e.FindingCount)
		if errText := strings.TrimSpace(e.Error); errText != "" {
			return "::error::" + sanitize.ActionsData(e.Technology+" failed: "+errText)
		}
		return line
	case EventRunFinished:
		if e.Status == "failed" {
			return fmt.Sprintf("::error::Unacceptable threshold of risk has been hit (violations: %d)", e.ViolationCount)
		}
		return fmt.Sprintf("Total unacceptable alerts :: %d", e.ViolationCount)
	default:
		return ""
	}
}

func clean(s string) string {
	return sanitize.Inline(s)
}

func centerTitle(title string, width int) string {
	title = " " + title + " "
	if len(title) >= width {
		return title
	}
	pad := width - len(title)
	left := pad / 2
	return strings.Repeat("-", left) + title + strings.Repeat("-", pad-left)
}
