package progress

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunFinished   EventType = "run_finished"
	EventCheckStarted  EventType = "check_started"
	EventCheckFinished EventType = "check_finished"
	EventViolation     EventType = "violation"
	EventInfo          EventType = "info"
	EventWarning       EventType = "warning"
	EventDebug         EventType = "debug"
	EventGroupStarted  EventType = "group_started"
	EventGroupFinished EventType = "group_finished"
)

type Event struct {
	Type           EventType `json:"type"`
	At             time.Time `json:"at"`
	RunID          string    `json:"run_id,omitempty"`
	Technology     string    `json:"technology,omitempty"`
	Status         string    `json:"status,omitempty"`
	Message        string    `json:"message,omitempty"`
	Error          string    `json:"error,omitempty"`
	File           string    `json:"file,omitempty"`
	Line           int       `json:"line,omitempty"`
	Column         int       `json:"column,omitempty"`
	FindingCount   int       `json:"finding_count,omitempty"`
	ViolationCount int       `json:"violation_count,omitempty"`
	DurationMS     int64     `json:"duration_ms,omitempty"`
}

// Infof, Warnf and Debugf emit message events. A nil sink is a no-op.
func Infof(s Sink, format string, args ...any) {
	emitf(s, EventInfo, format, args...)
}

func Warnf(s Sink, format string, args ...any) {
	emitf(s, EventWarning, format, args...)
}

func Debugf(s Sink, format string, args ...any) {
	emitf(s, EventDebug, format, args...)
}

func emitf(s Sink, t EventType, format string, args ...any) {
	if s == nil {
		return
	}
	s.Emit(Event{Type: t, Message: fmt.Sprintf(format, args...)})
}
