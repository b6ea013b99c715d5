package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// FormatItemList renders the item table shown by "item list".
func FormatItemList(items []*domain.Item, now time.Time) string {
	headers := []string{"ID", "TITLE", "PRIORITY", "STATUS", "SUBS", "WORKED", "DUE"}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		subs := Dim("--")
		if len(it.Subitems) > 0 {
			subs = fmt.Sprintf("%d/%d", len(it.Subitems)-len(it.OpenSubitems()), len(it.Subitems))
		}
		title := Bold(Truncate(it.Title, 48))
		if tags := Tags(it.Tags); tags != "" {
			title += " " + tags
		}
		rows = append(rows, []string{
			it.ID,
			title,
			PriorityBadge(it.Priority),
			StatusPill(it.Status),
			subs,
			FormatWorked(it.ElapsedMs(now)),
			DueStyled(it.DueDate, now, it.IsTerminal()),
		})
	}
	return RenderBox("Items", RenderTable(headers, rows))
}

// FormatItem renders the "item show" card: metadata on the left, subitem
// tree on the right.
func FormatItem(it *domain.Item, now time.Time) string {
	left := cardPanel(&it.Card, now)

	var extra strings.Builder
	if it.EpicID != "" {
		extra.WriteString(field("epic", StylePurple.Render(it.EpicID)))
	}
	if it.Release != nil {
		extra.WriteString(field("release", fmt.Sprintf("%s %s", it.Release.ReleaseID, Dim(it.Release.Platform))))
	}
	if !it.Worktree.Empty() {
		extra.WriteString(field("worktree", it.Worktree.Path))
		if it.Worktree.Branch != "" {
			extra.WriteString(field("branch", it.Worktree.Branch))
		}
		if it.Worktree.SessionID != "" {
			extra.WriteString(field("session", Dim(it.Worktree.SessionID)))
		}
	}
	left += extra.String()
	if len(it.Audit) > 0 {
		left += "\n" + auditLines(it.Audit)
	}

	if len(it.Subitems) == 0 {
		return RenderBox("", left)
	}
	right := StyleHeader.Render("SUBITEMS") + "\n" + RenderTree(SubitemTree(it))
	return RenderBox("", lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", right))
}

// FormatCard renders a single item or subitem after a workflow command.
func FormatCard(c *domain.Card, now time.Time) string {
	return RenderBox("", cardPanel(c, now))
}

// SubitemTree lists the item and its subitems as tree nodes.
func SubitemTree(it *domain.Item) []TreeItem {
	nodes := make([]TreeItem, 0, len(it.Subitems)+1)
	nodes = append(nodes, TreeItem{
		Title:  it.ID + " " + it.Title,
		Done:   it.Status == domain.StatusCompleted,
		Active: it.Status == domain.StatusInProgress,
	})
	for i, s := range it.Subitems {
		nodes = append(nodes, TreeItem{
			Title:  s.ID + " " + Truncate(s.Title, 40),
			Level:  1,
			IsLast: i == len(it.Subitems)-1,
			Done:   s.Status == domain.StatusCompleted,
			Active: s.Status == domain.StatusInProgress,
			Detail: StatusPill(s.Status),
		})
	}
	return nodes
}

// FormatSubitemList renders the subitems of one item.
func FormatSubitemList(subs []*domain.Subitem, now time.Time) string {
	headers := []string{"ID", "TITLE", "PRIORITY", "STATUS", "WORKED"}
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			s.ID,
			Truncate(s.Title, 48),
			PriorityBadge(s.Priority),
			StatusPill(s.Status),
			FormatWorked(s.ElapsedMs(now)),
		})
	}
	return RenderTable(headers, rows)
}

func cardPanel(c *domain.Card, now time.Time) string {
	var b strings.Builder
	b.WriteString(StyleBold.Render(c.ID+"  "+c.Title) + "\n")
	if tags := Tags(c.Tags); tags != "" {
		b.WriteString(tags + "\n")
	}
	b.WriteString("\n")

	status := StatusPill(c.Status)
	if c.Phase != "" && c.Status == domain.StatusInProgress {
		status += Dim(" · " + string(c.Phase))
	}
	if c.Status == domain.StatusPaused && c.PauseReason != "" {
		status += Dim(" · " + c.PauseReason)
	}
	b.WriteString(field("status", status))
	b.WriteString(field("priority", PriorityBadge(c.Priority)))

	worked := FormatWorked(c.ElapsedMs(now))
	if c.Working() {
		worked += StyleGreen.Render(" (session open)")
	}
	b.WriteString(field("worked", worked))
	b.WriteString(field("due", DueStyled(c.DueDate, now, c.IsTerminal())))
	if c.StartedAt != nil {
		b.WriteString(field("started", HumanTimestamp(*c.StartedAt)))
	}
	if c.CompletedAt != nil {
		b.WriteString(field("completed", HumanTimestamp(*c.CompletedAt)))
	}
	if c.IssueRef != "" {
		b.WriteString(field("issue", c.IssueRef))
	}
	if c.SCMIssue != "" {
		b.WriteString(field("scm", c.SCMIssue))
	}
	if c.Description != "" {
		b.WriteString("\n" + StyleFg.Render(c.Description) + "\n")
	}
	return b.String()
}

func auditLines(entries []domain.AuditEntry) string {
	var b strings.Builder
	b.WriteString(StyleHeader.Render("AUDIT") + "\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%s  %s  %s\n", Dim(HumanTimestamp(e.At)), StyleYellow.Render(e.Action), e.Detail))
	}
	return b.String()
}
