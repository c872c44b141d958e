// Package display renders the session header and the recent request log,
// either as a full-screen console or as plain lines.
package display

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"hop.computer/passage/app"
	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/logring"
)

// View is everything shown on one screen.
type View struct {
	Namespace   string
	Connections []app.Connection
	Snapshot    logring.Snapshot
}

// SessionStatus summarizes the connection states for the header.
func SessionStatus(conns []app.Connection) string {
	if len(conns) == 0 {
		return core.Closed.String()
	}
	counts := make(map[core.ConnectionState]int)
	for _, c := range conns {
		counts[c.State]++
	}
	if len(counts) == 1 {
		return conns[0].State.String()
	}
	return fmt.Sprintf("%s %d/%d", core.Online, counts[core.Online], len(conns))
}

func stateStyle(s string) lipgloss.Style {
	switch s {
	case core.Online.String():
		return successStyle
	case core.Offline.String(), core.Connecting.String():
		return offlineStyle
	default:
		if strings.HasPrefix(s, core.Online.String()+" ") {
			return redirectStyle
		}
		return errorStyle
	}
}

// StatusStyle colours a status code by class.
func StatusStyle(code int) lipgloss.Style {
	switch {
	case code == 0:
		return pendingStyle
	case code >= 500:
		return serverErrorStyle
	case code >= 300:
		return redirectStyle
	default:
		return successStyle
	}
}

// Preview formats the captured body for a log row, shortened to
// common.PreviewLength characters.
func Preview(rec *logring.Record) string {
	data := strings.Join(strings.Fields(rec.Data), " ")
	truncated := rec.Truncated
	if utf8.RuneCountInString(data) > common.PreviewLength {
		data = string([]rune(data)[:common.PreviewLength])
		truncated = true
	}
	if truncated {
		data += "..."
	}
	return fmt.Sprintf("[Content-Length: %d; Data: %q]", rec.ContentLength, data)
}

// Line formats one record without styling.
func Line(rec *logring.Record) string {
	status := "..."
	if !rec.Pending() {
		status = fmt.Sprintf("%d %s", rec.StatusCode, rec.StatusText)
	}
	return fmt.Sprintf("%s %-7s %s %s %s %s %s",
		rec.Started.Format("15:04:05"),
		rec.Method,
		rec.Connection,
		rec.Path,
		status,
		rec.Duration.Round(time.Millisecond),
		Preview(rec))
}

func renderRecord(rec *logring.Record, width int) string {
	status := StatusStyle(rec.StatusCode).Render("...")
	if !rec.Pending() {
		status = StatusStyle(rec.StatusCode).Render(fmt.Sprintf("%d %s", rec.StatusCode, rec.StatusText))
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		dimStyle.Render(rec.Started.Format("15:04:05")+" "),
		methodStyle.Render(rec.Method),
		baseStyle.Render(rec.Path+" "),
		status,
		dimStyle.Render(" "+rec.Duration.Round(time.Millisecond).String()+" "),
		dimStyle.Render(Preview(rec)),
	)
	if width > 0 {
		row = lipgloss.NewStyle().MaxWidth(width).Render(row)
	}
	return row
}

func field(label, value string, style lipgloss.Style) string {
	return labelStyle.Render(label) + style.Render(value)
}

// Render draws the header, the connection table and the request log. width
// limits each log row; zero leaves rows unbounded.
func Render(v View, width int) string {
	lines := []string{
		appStyle.Render(common.AppName) + baseStyle.Render(" "+common.Version),
		dimStyle.Render("(q or Ctrl+C to quit)"),
		"",
	}
	lines = append(lines, v.Snapshot.Header...)

	status := SessionStatus(v.Connections)
	lines = append(lines, field("Session Status", status, stateStyle(status)))
	if v.Namespace != "" {
		lines = append(lines, field("Relay Namespace", v.Namespace, baseStyle))
	}
	for _, c := range v.Connections {
		value := c.Forwarding
		style := baseStyle
		if c.Error != "" {
			value = c.Name + ": " + c.Error
			style = errorStyle
		} else if c.State != core.Online {
			value += " (" + c.State.String() + ")"
			style = offlineStyle
		}
		lines = append(lines, field("Forwarding", value, style))
	}

	lines = append(lines, titleStyle.Render("Relay Requests"), dimStyle.Render(strings.Repeat("_", 26)), "")
	for i := range v.Snapshot.Records {
		lines = append(lines, renderRecord(&v.Snapshot.Records[i], width))
	}
	if len(v.Snapshot.Footer) > 0 {
		lines = append(lines, "")
		lines = append(lines, v.Snapshot.Footer...)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
