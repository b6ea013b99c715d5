package formatter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// RenderBox wraps content in a rounded-border box with an optional title.
func RenderBox(title string, content string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		PaddingLeft(2).
		PaddingRight(2).
		PaddingTop(1).
		PaddingBottom(1)

	if title != "" {
		return boxStyle.Render(StyleHeader.Render(strings.ToUpper(title)) + "\n\n" + content)
	}
	return boxStyle.Render(content)
}

// RelativeDateFrom returns a human-friendly relative date string from a reference time.
func RelativeDateFrom(t time.Time, now time.Time) string {
	days := int(math.Round(t.Sub(now).Hours() / 24))

	switch {
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	case days == -1:
		return "Yesterday"
	case days > 0 && days < 14:
		return fmt.Sprintf("In %dd", days)
	case days > 0 && days < 60:
		return fmt.Sprintf("In %dw", days/7)
	case days > 0:
		return fmt.Sprintf("In %dmo", days/30)
	case days > -14:
		return fmt.Sprintf("%dd ago", -days)
	case days > -60:
		return fmt.Sprintf("%dw ago", -days/7)
	default:
		return fmt.Sprintf("%dmo ago", -days/30)
	}
}

// DueStyled renders a due date relative to now with urgency coloring. Closed
// cards are never urgent.
func DueStyled(due *time.Time, now time.Time, closed bool) string {
	if due == nil {
		return Dim("--")
	}
	text := RelativeDateFrom(*due, now)
	if closed {
		return Dim(text)
	}
	days := int(math.Round(due.Sub(now).Hours() / 24))
	switch {
	case days <= 2:
		return StyleRed.Render(text)
	case days <= 7:
		return StyleYellow.Render(text)
	default:
		return StyleFg.Render(text)
	}
}

// HumanDate formats t as an absolute date, or "--" for nil.
func HumanDate(t *time.Time) string {
	if t == nil {
		return "--"
	}
	return t.Local().Format("Jan 2, 2006")
}

// HumanTimestamp formats t with minute precision.
func HumanTimestamp(t time.Time) string {
	return t.Local().Format("Jan 2 15:04")
}

// FormatWorked renders accumulated work time, e.g. "1h 05m".
func FormatWorked(ms int64) string {
	if ms <= 0 {
		return "0m"
	}
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// Truncate shortens s to width visible runes with an ellipsis.
func Truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// Tags renders a tag list as "#a #b".
func Tags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = "#" + t
	}
	return StylePurple.Render(strings.Join(parts, " "))
}

// field renders one "LABEL  value" metadata line.
func field(label, value string) string {
	return fmt.Sprintf("%s  %s\n", StyleDim.Render(fmt.Sprintf("%-9s", strings.ToUpper(label))), value)
}
