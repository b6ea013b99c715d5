package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorPurple = lipgloss.Color("#d3869b")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

// Predefined lipgloss styles.
var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StylePurple = lipgloss.NewStyle().Foreground(ColorPurple)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleFg     = lipgloss.NewStyle().Foreground(ColorFg)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// PriorityStyle returns the style used for a priority label.
func PriorityStyle(p domain.Priority) lipgloss.Style {
	switch p {
	case domain.PriorityCritical:
		return StyleRed
	case domain.PriorityHigh:
		return StyleYellow
	case domain.PriorityMedium:
		return StyleFg
	default:
		return StyleDim
	}
}

// PriorityBadge returns a colored priority label such as "▲ critical".
func PriorityBadge(p domain.Priority) string {
	switch p {
	case domain.PriorityCritical:
		return StyleRed.Render("▲ critical")
	case domain.PriorityHigh:
		return StyleYellow.Render("△ high")
	case domain.PriorityPausedPending:
		return StyleDim.Render("‖ paused-pending")
	default:
		return PriorityStyle(p).Render("· " + string(p))
	}
}

// StatusPill returns a colored status indicator for an item or subitem.
func StatusPill(status domain.Status) string {
	switch status {
	case domain.StatusTodo:
		return StyleBlue.Render("○ Todo")
	case domain.StatusInProgress:
		return StyleGreen.Render("● In Progress")
	case domain.StatusPaused:
		return StyleYellow.Render("‖ Paused")
	case domain.StatusCompleted:
		return StyleDim.Render("✔ Done")
	case domain.StatusCancelled:
		return StyleDim.Render("✖ Cancelled")
	default:
		return StyleDim.Render(string(status))
	}
}

// EpicStatusPill returns a colored epic status indicator.
func EpicStatusPill(status domain.EpicStatus) string {
	switch status {
	case domain.EpicActive:
		return StyleGreen.Render("● Active")
	case domain.EpicPlanning:
		return StyleBlue.Render("○ Planning")
	case domain.EpicOnHold:
		return StyleYellow.Render("‖ On Hold")
	case domain.EpicCompleted:
		return StyleDim.Render("✔ Completed")
	case domain.EpicCancelled:
		return StyleDim.Render("✖ Cancelled")
	default:
		return StyleDim.Render(string(status))
	}
}

// ReleaseStatusPill returns a colored release status indicator.
func ReleaseStatusPill(status domain.ReleaseStatus) string {
	switch status {
	case domain.ReleasePlanning:
		return StyleBlue.Render("○ Planning")
	case domain.ReleaseInProgress:
		return StyleGreen.Render("● In Progress")
	case domain.ReleaseCompleted:
		return StyleDim.Render("✔ Completed")
	case domain.ReleaseArchived:
		return StyleDim.Render("✖ Archived")
	default:
		return StyleDim.Render(string(status))
	}
}

// EnvBadge colors an environment by how close it is to production.
func EnvBadge(env domain.Environment) string {
	switch env {
	case domain.EnvProd:
		return StyleRed.Render(string(env))
	case domain.EnvGamma, domain.EnvBeta:
		return StyleYellow.Render(string(env))
	case domain.EnvAlpha, domain.EnvQA:
		return StyleBlue.Render(string(env))
	default:
		return StyleDim.Render(string(env))
	}
}

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// Dim renders text in the muted/dim color.
func Dim(text string) string {
	return StyleDim.Render(text)
}

// Bold renders text in bold with the foreground color.
func Bold(text string) string {
	return StyleBold.Render(text)
}
