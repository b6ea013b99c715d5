package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const columnWidth = 30

var boardColumns = []struct {
	status domain.Status
	title  string
}{
	{domain.StatusTodo, "Todo"},
	{domain.StatusInProgress, "In Progress"},
	{domain.StatusPaused, "Paused"},
	{domain.StatusCompleted, "Done"},
}

// FormatBoard renders the open and completed items of a board as status
// columns. Cancelled items are counted but not drawn. Collapsed items hide
// their subitems.
func FormatBoard(b *domain.Board, now time.Time) string {
	byStatus := make(map[domain.Status][]*domain.Item)
	for _, it := range b.ListItems(domain.ItemFilter{}) {
		byStatus[it.Status] = append(byStatus[it.Status], it)
	}

	colStyle := lipgloss.NewStyle().Width(columnWidth).PaddingRight(1)
	cols := make([]string, 0, len(boardColumns))
	for _, col := range boardColumns {
		var c strings.Builder
		items := byStatus[col.status]
		c.WriteString(StyleHeader.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(col.title), len(items))) + "\n")
		c.WriteString(StyleDim.Render(strings.Repeat("─", columnWidth-1)) + "\n")
		for _, it := range items {
			c.WriteString(boardCard(it, b.Collapsed[it.ID], now))
		}
		cols = append(cols, colStyle.Render(c.String()))
	}

	title := fmt.Sprintf("Board %s", b.Team)
	footer := Dim(fmt.Sprintf("%d items · %d cancelled · %d epics · %d releases · updated %s",
		len(b.Items), len(byStatus[domain.StatusCancelled]), len(b.Epics), len(b.Releases), HumanTimestamp(b.LastUpdated)))
	return RenderBox(title, lipgloss.JoinHorizontal(lipgloss.Top, cols...)+"\n"+footer)
}

func boardCard(it *domain.Item, collapsed bool, now time.Time) string {
	var b strings.Builder
	b.WriteString(PriorityStyle(it.Priority).Render(it.ID) + " " + Truncate(it.Title, columnWidth-len(it.ID)-2) + "\n")

	var meta []string
	if it.Phase != "" && it.Status == domain.StatusInProgress {
		meta = append(meta, string(it.Phase))
	}
	if it.EpicID != "" {
		meta = append(meta, it.EpicID)
	}
	if it.Release != nil {
		meta = append(meta, it.Release.ReleaseID)
	}
	if ms := it.ElapsedMs(now); ms > 0 {
		meta = append(meta, FormatWorked(ms))
	}
	if len(meta) > 0 {
		b.WriteString("  " + Dim(strings.Join(meta, " · ")) + "\n")
	}
	if len(it.Subitems) > 0 {
		if collapsed {
			b.WriteString("  " + Dim(fmt.Sprintf("▸ %d subitems", len(it.Subitems))) + "\n")
		} else {
			for _, s := range it.Subitems {
				mark := "○"
				if s.IsTerminal() {
					mark = "✔"
				} else if s.Status == domain.StatusInProgress {
					mark = "▶"
				}
				b.WriteString("  " + Dim(mark+" ") + Truncate(s.Title, columnWidth-6) + "\n")
			}
		}
	}
	return b.String()
}
