package formatter

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TreeItem represents a single node in a tree display.
type TreeItem struct {
	Title  string
	Level  int
	IsLast bool
	Done   bool
	Active bool
	Detail string
}

const (
	treeBranch = "├─ "
	treeCorner = "└─ "
	treePipe   = "│  "
)

// RenderTree renders TreeItems as an indented tree. Done nodes get a ✔
// prefix, active nodes a ▶ prefix, and details are right-aligned.
func RenderTree(items []TreeItem) string {
	if len(items) == 0 {
		return ""
	}

	contents := make([]string, len(items))
	widest := 0
	for i, item := range items {
		var prefix string
		if item.Level > 0 {
			prefix = strings.Repeat(treePipe, item.Level-1)
			if item.IsLast {
				prefix += treeCorner
			} else {
				prefix += treeBranch
			}
		}
		title := StyleFg.Render(item.Title)
		switch {
		case item.Done:
			title = StyleGreen.Render("✔ ") + StyleDim.Render(item.Title)
		case item.Active:
			title = StyleYellow.Render("▶ ") + title
		}
		contents[i] = StyleDim.Render(prefix) + title
		widest = max(widest, lipgloss.Width(contents[i]))
	}

	var b strings.Builder
	for i, item := range items {
		b.WriteString(contents[i])
		if item.Detail != "" {
			b.WriteString(strings.Repeat(" ", widest-lipgloss.Width(contents[i])+colGap))
			b.WriteString(item.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}
