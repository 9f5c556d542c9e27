package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/label-copilot/internal/model"
)

// narrativeSection is one header of the six-section answer.
type narrativeSection struct {
	name   string
	header string
	re     *regexp.Regexp
}

// narrativeSections lists the headers in the order they must appear. The
// patterns accept the asterisk and colon variations models produce.
var narrativeSections = []narrativeSection{
	{"scanning", "Scanning your <brand>", regexp.MustCompile(`(?i)scanning\s+your\b`)},
	{"quick_decision", "**Quick Decision:**", regexp.MustCompile(`(?i)\*{0,2}quick decision\s*:?\*{0,2}:?`)},
	{"why_matters", "**Why This Matters To You:**", regexp.MustCompile(`(?i)\*{0,2}why this matters(?: to you)?\s*:?\*{0,2}:?`)},
	{"tradeoffs", "**Tradeoffs**:", regexp.MustCompile(`(?i)\*{0,2}trade-?offs?\*{0,2}\s*:`)},
	{"unsure", "**What I'm Unsure About**:", regexp.MustCompile(`(?i)\*{0,2}what i['’]?m (?:unsure|not sure) about\*{0,2}\s*:?`)},
	{"better_options", "**Better Options**:", regexp.MustCompile(`(?i)\*{0,2}better options?\*{0,2}\s*:?`)},
}

// ValidateNarrative checks text against the section contract and returns a
// description of each violation. Headers must appear in order, and the quick
// decision must open with one of the permitted decisions.
func ValidateNarrative(text string, permitted []model.Decision) []string {
	var problems []string

	pos := 0
	quickStart := -1
	for _, s := range narrativeSections {
		loc := s.re.FindStringIndex(text[pos:])
		if loc == nil {
			problems = append(problems, fmt.Sprintf("missing or out-of-order section %q", s.header))
			continue
		}
		pos += loc[1]
		if s.name == "quick_decision" {
			quickStart = pos
		}
	}

	if quickStart >= 0 {
		line := text[quickStart:]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		if p := checkDecision(line, permitted); p != "" {
			problems = append(problems, p)
		}
	}
	return problems
}

// checkDecision finds the vocabulary term that appears first in the quick
// decision line and reports it when it is not permitted.
func checkDecision(line string, permitted []model.Decision) string {
	lower := strings.ToLower(line)

	first, at := model.Decision(""), -1
	for _, d := range model.Decisions {
		i := strings.Index(lower, strings.ToLower(string(d)))
		if i >= 0 && (at < 0 || i < at) {
			first, at = d, i
		}
	}

	names := make([]string, len(permitted))
	for i, d := range permitted {
		names[i] = string(d)
	}
	allowed := strings.Join(names, ", ")

	if at < 0 {
		return fmt.Sprintf("quick decision must start with one of: %s", allowed)
	}
	for _, d := range permitted {
		if d == first {
			return ""
		}
	}
	return fmt.Sprintf("quick decision %q is not allowed here, use one of: %s", first, allowed)
}
