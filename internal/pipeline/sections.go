package pipeline

import (
	"regexp"
	"strings"

	"github.com/sells-group/label-copilot/internal/model"
)

var (
	// "- **Sodium**: 192mg is 8% of ..." or "* Sodium: ..."
	bulletItemRe = regexp.MustCompile(`^[-*•]\s+\**([^*:]+?)\**\s*:\**\s*(.*)$`)
	// "- Terra Veggie Chips (Why it's better: less sodium)"
	betterOptionRe = regexp.MustCompile(`(?i)^[-*•\s]*(?:🛒\s*)?(?:try\s+)?(.+?)\s*\(\s*why it['’]?s better:\s*(.+?)\s*\)\s*$`)
	// "- Hippeas Chickpea Puffs: baked not fried"
	bulletOptionRe = regexp.MustCompile(`^[-*•]\s+\**([^*:(]+)\**[:\s]*(.*)$`)
	// Any bold header, used to end run-on sections.
	boldHeaderRe = regexp.MustCompile(`^\*\*[A-Z]`)
)

// ParseNarrative splits a final answer into its sections. Unrecognized lines
// are ignored, so a partially compliant answer yields partial sections.
func ParseNarrative(text string) *model.NarrativeSections {
	s := &model.NarrativeSections{
		WhyMatters:    []model.NarrativeItem{},
		Unsure:        []model.NarrativeItem{},
		BetterOptions: []model.BetterOption{},
	}

	current := ""
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if name, rest, ok := headerLine(line, current); ok {
			current = name
			switch name {
			case "scanning":
				s.Scanning = strings.TrimSpace(strings.TrimLeft(line, "🤔 "))
			case "quick_decision":
				s.QuickDecision = rest
			case "tradeoffs":
				s.Tradeoffs = rest
			case "unsure":
				if rest != "" {
					s.Unsure = append(s.Unsure, model.NarrativeItem{Content: rest})
				}
			case "better_options":
				if rest != "" {
					s.BetterOptions = append(s.BetterOptions, parseOptionLine(rest, true)...)
				}
			}
			continue
		}

		switch current {
		case "quick_decision":
			if !boldHeaderRe.MatchString(line) {
				s.QuickDecision = joinText(s.QuickDecision, line)
			}
		case "tradeoffs":
			if !boldHeaderRe.MatchString(line) {
				s.Tradeoffs = joinText(s.Tradeoffs, line)
			}
		case "why_matters":
			s.WhyMatters = appendItem(s.WhyMatters, line)
		case "unsure":
			s.Unsure = appendItem(s.Unsure, line)
		case "better_options":
			s.BetterOptions = append(s.BetterOptions, parseOptionLine(line, false)...)
		}
	}
	return s
}

// listSections hold bullet items.
var listSections = map[string]bool{"why_matters": true, "unsure": true, "better_options": true}

// headerLine is matchHeader, except that inside a list section a bullet is
// always an item, even when its title reads like a header.
func headerLine(line, current string) (string, string, bool) {
	if listSections[current] && isBullet(line) {
		return "", "", false
	}
	return matchHeader(line)
}

// isBullet reports whether line is a list item. A bold "**" opener is not.
func isBullet(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "• ") || strings.HasPrefix(line, "* ")
}

// matchHeader reports which section line opens and the text after the
// header on the same line.
func matchHeader(line string) (string, string, bool) {
	for _, sec := range narrativeSections {
		loc := sec.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		// Headers open their line, apart from an emoji or bullet.
		if prefix := strings.Trim(line[:loc[0]], "🤔🛒-*• "); prefix != "" {
			continue
		}
		rest := strings.TrimSpace(strings.TrimLeft(line[loc[1]:], "*: "))
		return sec.name, rest, true
	}
	return "", "", false
}

func appendItem(items []model.NarrativeItem, line string) []model.NarrativeItem {
	if m := bulletItemRe.FindStringSubmatch(line); m != nil {
		return append(items, model.NarrativeItem{
			Title:   strings.TrimSpace(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	if boldHeaderRe.MatchString(line) || len(items) == 0 {
		return items
	}
	// Continuation of the previous bullet.
	last := &items[len(items)-1]
	last.Content = joinText(last.Content, strings.TrimLeft(line, "-*• "))
	return items
}

// parseOptionLine extracts options from one line. Inline header text may
// name several products joined by " or ".
func parseOptionLine(line string, inline bool) []model.BetterOption {
	if m := betterOptionRe.FindStringSubmatch(line); m != nil {
		return []model.BetterOption{{Name: strings.TrimSpace(m[1]), Details: strings.TrimSpace(m[2])}}
	}
	if m := bulletOptionRe.FindStringSubmatch(line); m != nil {
		return []model.BetterOption{{Name: strings.TrimSpace(m[1]), Details: strings.TrimSpace(m[2])}}
	}
	if !inline {
		return nil
	}
	return []model.BetterOption{{Name: strings.TrimSpace(strings.TrimLeft(line, "🛒 "))}}
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
