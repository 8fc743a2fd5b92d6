package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

const maxEventLines = 12

type checkState struct {
	Technology     string
	Status         string
	Alerts         int
	ViolationCount int
	DurationMS     int64
	StartedAt      time.Time
	Error          string
}

type eventLine struct {
	Technology string
	Severity   string
	Text       string
}

type eventMsg struct {
	event progress.Event
	ok    bool
}

type uiModel struct {
	events <-chan progress.Event

	runID      string
	runStatus  string
	runError   string
	startedAt  time.Time
	finishedAt time.Time
	violations int

	showDetails bool
	done        bool
	noColor     bool

	checks map[string]checkState
	order  []string

	logLines    []eventLine
	eventFilter string
	pauseEvents bool
	pausedLines []eventLine
	tick        int
}

func newModel(events <-chan progress.Event, technologies []string) uiModel {
	m := uiModel{
		events:      events,
		runStatus:   "running",
		checks:      make(map[string]checkState),
		order:       []string{},
		showDetails: true,
		noColor:     noColorEnabled(),
		logLines:    make([]eventLine, 0, maxEventLines),
	}
	for _, t := range technologies {
		m.checks[t] = checkState{Technology: t, Status: "pending"}
		m.order = append(m.order, t)
	}
	return m
}

func noColorEnabled() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

type tickMsg time.Time

func nextTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), nextTick())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "d":
			m.showDetails = !m.showDetails
		case "p":
			m.pauseEvents = !m.pauseEvents
			if m.pauseEvents {
				m.pausedLines = append([]eventLine{}, m.logLines...)
			} else {
				m.pausedLines = nil
			}
		case "f":
			m.eventFilter = m.nextFilter()
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
		}
		return m, nil
	case eventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.applyEvent(msg.event)
		return m, waitForEvent(m.events)
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, nextTick()
	default:
		return m, nil
	}
}

func (m uiModel) render(s lipgloss.Style, text string) string {
	if m.noColor {
		return text
	}
	return s.Render(text)
}

func (m uiModel) View() string {
	var b strings.Builder

	b.WriteString(m.render(titleStyle, "Advanced Security Compliance"))
	b.WriteString("\n")
	if m.runStatus == "running" {
		b.WriteString(fmt.Sprintf("Active: %s\n", m.render(runningStyle, m.runningFrame())))
	}
	b.WriteString(fmt.Sprintf("Run: %s\n", valueOrDash(m.runID)))
	b.WriteString(fmt.Sprintf("Status: %s\n", m.render(styleStatus(m.runStatus), strings.ToUpper(valueOrDash(m.runStatus)))))
	b.WriteString(fmt.Sprintf("Violations: %d\n", m.violations))
	b.WriteString(fmt.Sprintf("Elapsed: %s\n", m.elapsedString()))
	b.WriteString("\n")

	b.WriteString(m.render(headerStyle, fmt.Sprintf("%-16s %-11s %-8s %-10s %-10s", "Technology", "Status", "Alerts", "Violations", "Duration")))
	b.WriteString("\n")

	for idx, tech := range m.orderedChecks() {
		c := m.checks[tech]
		status := c.Status
		if strings.TrimSpace(status) == "" {
			status = "pending"
		}
		line := fmt.Sprintf("%-16s %-11s %-8d %-10d %-10s", tech, m.statusDisplay(status, idx), c.Alerts, c.ViolationCount, durationString(m.durationMS(c, status)))
		b.WriteString(m.render(styleStatus(status), line))
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString("\n")
		header := "Recent Events"
		if m.eventFilter != "" {
			header += " [" + m.eventFilter + "]"
		}
		if m.pauseEvents {
			header += " (paused)"
		}
		b.WriteString(m.render(headerStyle, header))
		b.WriteString("\n")
		lines := m.visibleEventLines()
		if len(lines) == 0 {
			b.WriteString(m.render(idleStyle, "No events yet."))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString(m.render(lineStyle(line.Severity), line.Text))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.render(helpStyle, "Press q to close"))
	} else {
		b.WriteString(m.render(helpStyle, "d toggle details, f filter, p pause"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m *uiModel) applyEvent(e progress.Event) {
	switch e.Type {
	case progress.EventRunStarted:
		m.runID = e.RunID
		m.runStatus = "running"
		if !e.At.IsZero() {
			m.startedAt = e.At
		}
		m.appendEventLine(e, "info", fmt.Sprintf("run started (%s)", valueOrDash(e.RunID)))
	case progress.EventCheckStarted:
		c := m.ensureCheck(e.Technology)
		c.Status = "running"
		if !e.At.IsZero() {
			c.StartedAt = e.At
		}
		m.checks[e.Technology] = c
		m.appendEventLine(e, "info", fmt.Sprintf("%s started", e.Technology))
	case progress.EventViolation:
		m.appendEventLine(e, "error", fmt.Sprintf("%s violation: %s", e.Technology, e.Message))
	case progress.EventWarning:
		m.appendEventLine(e, "warning", "warning: "+firstNonEmpty(e.Message, e.Error))
	case progress.EventInfo:
		m.appendEventLine(e, "info", e.Message)
	case progress.EventCheckFinished:
		c := m.ensureCheck(e.Technology)
		c.Status = firstNonEmpty(e.Status, c.Status)
		c.Alerts = e.FindingCount
		c.ViolationCount = e.ViolationCount
		c.DurationMS = e.DurationMS
		c.Error = firstNonEmpty(e.Error, c.Error)
		m.checks[e.Technology] = c
		msg := fmt.Sprintf("%s finished status=%s violations=%d duration=%s", e.Technology, firstNonEmpty(e.Status, "unknown"), e.ViolationCount, durationString(e.DurationMS))
		sev := "info"
		if strings.TrimSpace(e.Error) != "" {
			msg += " error=" + strings.TrimSpace(e.Error)
			sev = "error"
		}
		m.appendEventLine(e, sev, msg)
	case progress.EventRunFinished:
		m.runStatus = firstNonEmpty(e.Status, model.StatusPassed)
		m.runError = strings.TrimSpace(e.Error)
		m.violations = e.ViolationCount
		if !e.At.IsZero() {
			m.finishedAt = e.At
		}
		m.done = true
		msg := fmt.Sprintf("run finished status=%s violations=%d duration=%s", m.runStatus, e.ViolationCount, durationString(e.DurationMS))
		if m.runError != "" {
			msg += " error=" + m.runError
		}
		m.appendEventLine(e, "info", msg)
	}
}

func (m *uiModel) ensureCheck(tech string) checkState {
	c, ok := m.checks[tech]
	if !ok {
		c = checkState{Technology: tech, Status: "pending"}
	}
	return c
}

// orderedChecks lists running checks first, then failures, then the rest
// in seeded order.
func (m uiModel) orderedChecks() []string {
	out := append([]string{}, m.order...)
	seen := make(map[string]struct{}, len(out))
	for _, tech := range out {
		seen[tech] = struct{}{}
	}
	var extra []string
	for tech := range m.checks {
		if _, ok := seen[tech]; !ok {
			extra = append(extra, tech)
		}
	}
	sort.Strings(extra)
	out = append(out, extra...)

	sort.SliceStable(out, func(i, j int) bool {
		return statusPriority(m.checks[out[i]].Status) < statusPriority(m.checks[out[j]].Status)
	})
	return out
}

func statusPriority(status string) int {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "running":
		return 0
	case model.StatusFailed, model.StatusErrored:
		return 1
	default:
		return 2
	}
}

func (m uiModel) nextFilter() string {
	techs := m.orderedChecks()
	sort.Strings(techs)
	if m.eventFilter == "" {
		if len(techs) == 0 {
			return ""
		}
		return techs[0]
	}
	for i, t := range techs {
		if t == m.eventFilter && i+1 < len(techs) {
			return techs[i+1]
		}
	}
	return ""
}

// visibleEventLines applies the technology filter. Lines without a
// technology are always shown.
func (m uiModel) visibleEventLines() []eventLine {
	src := m.logLines
	if m.pauseEvents {
		src = m.pausedLines
	}
	if m.eventFilter == "" {
		return src
	}
	out := make([]eventLine, 0, len(src))
	for _, line := range src {
		if line.Technology == "" || line.Technology == m.eventFilter {
			out = append(out, line)
		}
	}
	return out
}

func (m uiModel) elapsedString() string {
	if m.startedAt.IsZero() {
		return "0s"
	}
	end := time.Now().UTC()
	if !m.finishedAt.IsZero() {
		end = m.finishedAt
	}
	return end.Sub(m.startedAt).Round(time.Second).String()
}

func (m *uiModel) appendEventLine(e progress.Event, severity, text string) {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m.logLines = append(m.logLines, eventLine{
		Technology: e.Technology,
		Severity:   severity,
		Text:       fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), strings.TrimSpace(text)),
	})
	if len(m.logLines) > maxEventLines {
		m.logLines = m.logLines[len(m.logLines)-maxEventLines:]
	}
}

func durationString(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func styleStatus(status string) lipgloss.Style {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case model.StatusPassed:
		return okStyle
	case model.StatusErrored:
		return warnStyle
	case model.StatusFailed:
		return errorStyle
	case "running":
		return runningStyle
	default:
		return idleStyle
	}
}

func lineStyle(severity string) lipgloss.Style {
	switch severity {
	case "error":
		return errorStyle
	case "warning":
		return warnStyle
	default:
		return idleStyle
	}
}

func (m uiModel) runningFrame() string {
	frames := []string{"-", "\\", "|", "/"}
	return frames[m.tick%len(frames)]
}

func (m uiModel) statusDisplay(status string, idx int) string {
	if strings.EqualFold(strings.TrimSpace(status), "running") {
		frames := []string{"-", "\\", "|", "/"}
		return "running " + frames[(m.tick+idx)%len(frames)]
	}
	return strings.TrimSpace(status)
}

func (m uiModel) durationMS(c checkState, status string) int64 {
	if strings.EqualFold(strings.TrimSpace(status), "running") && !c.StartedAt.IsZero() {
		return time.Since(c.StartedAt).Milliseconds()
	}
	return c.DurationMS
}
