package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderramin/kanban/internal/domain"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var compactDuration = regexp.MustCompile(`^\+?(\d+)([hdwm])$`)

var dueParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDue accepts YYYY-MM-DD, compact offsets ("3d", "+2w", "12h", "1m" for
// a month) and natural language ("next friday", "tomorrow 5pm"). Dates
// without a time of day fall at the end of that day in local time.
func parseDue(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		d = endOfDay(d)
		return &d, nil
	}
	if m := compactDuration.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		var d time.Time
		switch m[2] {
		case "h":
			d = now.Add(time.Duration(n) * time.Hour)
		case "d":
			d = endOfDay(now.AddDate(0, 0, n))
		case "w":
			d = endOfDay(now.AddDate(0, 0, 7*n))
		case "m":
			d = endOfDay(now.AddDate(0, n, 0))
		}
		return &d, nil
	}
	r, err := dueParser.Parse(s, now)
	if err != nil {
		return nil, fmt.Errorf("%w: due date %q: %v", domain.ErrValidation, s, err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: cannot understand due date %q (try 2026-03-01, 3d or \"next friday\")", domain.ErrValidation, s)
	}
	d := r.Time
	return &d, nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
}
