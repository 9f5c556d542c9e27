package model

// NarrativeItem is a titled bullet inside a narrative section.
type NarrativeItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BetterOption is one alternative product named in the narrative.
type BetterOption struct {
	Name    string `json:"name"`
	Details string `json:"details,omitempty"`
}

// NarrativeSections is the final answer split along its six sections.
type NarrativeSections struct {
	Scanning      string          `json:"scanning"`
	QuickDecision string          `json:"quick_decision"`
	WhyMatters    []NarrativeItem `json:"why_matters"`
	Tradeoffs     string          `json:"tradeoffs"`
	Unsure        []NarrativeItem `json:"unsure"`
	BetterOptions []BetterOption  `json:"better_options"`
}
