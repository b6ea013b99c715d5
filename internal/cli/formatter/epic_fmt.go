package formatter

import (
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
)

// EpicRow pairs an epic with its derived progress.
type EpicRow struct {
	Epic     *domain.Epic
	Progress domain.EpicProgress
}

func FormatEpicList(rows []EpicRow, now time.Time) string {
	headers := []string{"ID", "TITLE", "STATUS", "PRIORITY", "PROGRESS", "DUE"}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		closed := r.Epic.Status == domain.EpicCompleted || r.Epic.Status == domain.EpicCancelled
		out = append(out, []string{
			StylePurple.Render(r.Epic.ID),
			Bold(Truncate(r.Epic.Title, 40)),
			EpicStatusPill(r.Epic.Status),
			PriorityBadge(r.Epic.Priority),
			EpicProgress(r.Progress, 10),
			DueStyled(r.Epic.DueDate, now, closed),
		})
	}
	return RenderBox("Epics", RenderTable(headers, out))
}

// FormatEpic renders an epic with the table of its items.
func FormatEpic(e *domain.Epic, p domain.EpicProgress, items []*domain.Item, now time.Time) string {
	closed := e.Status == domain.EpicCompleted || e.Status == domain.EpicCancelled
	body := StyleBold.Render(e.ID+"  "+e.Title) + "\n\n" +
		field("status", EpicStatusPill(e.Status)) +
		field("priority", PriorityBadge(e.Priority)) +
		field("progress", EpicProgress(p, 20)) +
		field("due", DueStyled(e.DueDate, now, closed))
	if e.Owner != "" {
		body += field("owner", e.Owner)
	}
	if e.Description != "" {
		body += "\n" + StyleFg.Render(e.Description) + "\n"
	}
	if len(items) > 0 {
		rows := make([][]string, 0, len(items))
		for _, it := range items {
			rows = append(rows, []string{it.ID, Truncate(it.Title, 48), StatusPill(it.Status)})
		}
		body += "\n" + RenderTable([]string{"ID", "TITLE", "STATUS"}, rows)
	}
	return RenderBox("", body)
}
