package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
)

func FormatReleaseList(releases []*domain.Release, now time.Time) string {
	headers := []string{"ID", "NAME", "TYPE", "STATUS", "PLATFORMS", "TARGET"}
	rows := make([][]string, 0, len(releases))
	for _, r := range releases {
		rows = append(rows, []string{
			StyleBlue.Render(r.ID),
			Bold(Truncate(r.Name, 32)),
			string(r.Type),
			ReleaseStatusPill(r.Status),
			platformSummary(r),
			DueStyled(r.TargetDate, now, r.Status == domain.ReleaseCompleted || r.Status == domain.ReleaseArchived),
		})
	}
	return RenderBox("Releases", RenderTable(headers, rows))
}

// platformSummary renders "ios:QA android:DEV".
func platformSummary(r *domain.Release) string {
	names := r.PlatformNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		ps := r.Platforms[name]
		parts = append(parts, name+":"+EnvBadge(ps.Environment))
	}
	return strings.Join(parts, " ")
}

// FormatRelease renders a release, its platform ladders and its manifest.
func FormatRelease(r *domain.Release, m *domain.Manifest, diff domain.ManifestDiff, now time.Time) string {
	var b strings.Builder
	b.WriteString(StyleBold.Render(r.ID+"  "+r.Name) + "\n\n")
	b.WriteString(field("type", string(r.Type)))
	b.WriteString(field("status", ReleaseStatusPill(r.Status)))
	b.WriteString(field("target", DueStyled(r.TargetDate, now, r.Status == domain.ReleaseCompleted)))
	if r.Description != "" {
		b.WriteString("\n" + StyleFg.Render(r.Description) + "\n")
	}

	b.WriteString("\n")
	rows := make([][]string, 0, len(r.Platforms))
	for _, name := range r.PlatformNames() {
		ps := r.Platforms[name]
		build := Dim("--")
		if ps.BuildNumber > 0 {
			build = fmt.Sprint(ps.BuildNumber)
		}
		version := ps.Version
		if version == "" {
			version = Dim("--")
		}
		rows = append(rows, []string{name, version, build, Ladder(ps.Environment)})
	}
	b.WriteString(RenderTable([]string{"PLATFORM", "VERSION", "BUILD", "ENVIRONMENT"}, rows))

	b.WriteString("\n")
	if m == nil || len(m.Items) == 0 {
		b.WriteString(Dim("No items assigned.") + "\n")
	} else {
		items := make([][]string, 0, len(m.Items))
		for _, e := range m.Items {
			items = append(items, []string{e.ItemID, Truncate(e.Title, 40), e.Platform, StatusPill(e.Status)})
		}
		b.WriteString(RenderTable([]string{"ITEM", "TITLE", "PLATFORM", "STATUS"}, items))
	}
	if diff.Divergent() {
		b.WriteString("\n" + StyleRed.Render("● manifest diverges from board; run release resync") + "\n")
	} else if diff.Changed() {
		b.WriteString("\n" + StyleYellow.Render("○ manifest snapshot is stale") + "\n")
	}
	return RenderBox("", b.String())
}

// Ladder renders the environment ladder with the current rung highlighted.
func Ladder(current domain.Environment) string {
	parts := make([]string, 0, len(domain.EnvironmentLadder))
	for _, env := range domain.EnvironmentLadder {
		if env == current {
			parts = append(parts, EnvBadge(env))
			continue
		}
		parts = append(parts, Dim(strings.ToLower(string(env))))
	}
	return strings.Join(parts, Dim(" › "))
}

// FormatManifestDiffs renders verify and resync reports.
func FormatManifestDiffs(title string, diffs []domain.ManifestDiff) string {
	if len(diffs) == 0 {
		return StyleGreen.Render("✔ ") + title + ": all manifests match the board\n"
	}
	var b strings.Builder
	b.WriteString(Header(title) + "\n")
	for _, d := range diffs {
		mark := StyleYellow.Render("○")
		if d.Divergent() {
			mark = StyleRed.Render("●")
		}
		b.WriteString(fmt.Sprintf("%s %s", mark, Bold(d.ReleaseID)))
		if d.MissingManifest {
			b.WriteString(Dim(" (manifest missing)"))
		}
		b.WriteString("\n")
		for _, line := range []struct {
			label string
			ids   []string
		}{
			{"missing", d.Missing},
			{"unexpected", d.Unexpected},
			{"platform", d.Mismatched},
			{"stale", d.Stale},
		} {
			if len(line.ids) > 0 {
				b.WriteString("    " + field(line.label, strings.Join(line.ids, ", ")))
			}
		}
	}
	return b.String()
}
