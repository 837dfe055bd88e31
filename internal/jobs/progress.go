package jobs

import (
	"strconv"
	"strings"
)

// Milestone is a coarse progress checkpoint inferred from one line of
// renderer output.
type Milestone struct {
	Progress int
	Message  string
	// Explicit marks a percentage the renderer reported itself, as
	// opposed to a keyword-derived estimate.
	Explicit bool
}

// keywordMilestones maps renderer phases to progress estimates. Matched
// case-insensitively against the whole line, first hit wins.
var keywordMilestones = []struct {
	keywords []string
	progress int
	message  string
}{
	{[]string{"fetch", "download"}, 15, "fetching data"},
	{[]string{"process", "build"}, 40, "processing map data"},
	{[]string{"render", "draw"}, 70, "rendering poster"},
	{[]string{"sav", "writ"}, 90, "saving output"},
}

// ClassifyLine turns one line of renderer stdout into an optional
// milestone. A trailing "NN%" token (0-100) becomes an explicit
// progress value; otherwise keyword heuristics pick an estimate; lines
// matching neither are dropped. The renderer's output is advisory, so
// malformed tokens never produce an error.
func ClassifyLine(line string) (Milestone, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Milestone{}, false
	}
	if pct, ok := trailingPercent(line); ok {
		return Milestone{Progress: pct, Explicit: true}, true
	}
	lower := strings.ToLower(line)
	for _, m := range keywordMilestones {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return Milestone{Progress: m.progress, Message: m.message}, true
			}
		}
	}
	return Milestone{}, false
}

// trailingPercent parses a line-final percentage token such as "45%".
func trailingPercent(line string) (int, bool) {
	fields := strings.Fields(line)
	last := fields[len(fields)-1]
	if !strings.HasSuffix(last, "%") {
		return 0, false
	}
	digits := strings.TrimSuffix(last, "%")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}
