package model

// PhaseStatus represents the outcome of a single pipeline stage.
type PhaseStatus string

const (
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusDegraded PhaseStatus = "degraded"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// Stage names in execution order.
const (
	StageExtract   = "1_extract"
	StageProfile   = "2_profile"
	StageResearch  = "3_research"
	StageRisk      = "4_risk"
	StageNarrative = "5_narrative"
)

// StageOrder lists every stage in the fixed order the driver runs them.
var StageOrder = []string{StageExtract, StageProfile, StageResearch, StageRisk, StageNarrative}

// PhaseResult holds the outcome of a pipeline stage.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QualityFlag marks a degraded path taken while building the answer. Flags
// never reach the end user's narrative but are surfaced to callers so a
// silently defaulted answer can be told apart from a fully researched one.
type QualityFlag string

const (
	FlagLabelFallback       QualityFlag = "label_fallback"
	FlagLabelSecondChance   QualityFlag = "label_second_chance"
	FlagNutritionDropped    QualityFlag = "nutrition_dropped"
	FlagProfileUnavailable  QualityFlag = "profile_unavailable"
	FlagEvidenceFallback    QualityFlag = "evidence_fallback"
	FlagCategoryFallback    QualityFlag = "category_fallback"
	FlagAlternativesGeneric QualityFlag = "alternatives_generic"
	FlagRiskUnavailable     QualityFlag = "risk_unavailable"
	FlagNarrativeRetried    QualityFlag = "narrative_retried"
	FlagNarrativeIncomplete QualityFlag = "narrative_incomplete"
)

// Input is what a caller supplies to start a run.
type Input struct {
	ImagePath     string `json:"image_path"`
	UserRawHealth string `json:"user_raw_health"`
}

// Result is the output of a pipeline run. RunID and phase timings are kept
// outside State so that State is reproducible across runs.
type Result struct {
	RunID    string             `json:"run_id"`
	State    State              `json:"state"`
	Sections *NarrativeSections `json:"sections,omitempty"`
	Phases   []PhaseResult      `json:"phases"`
}

// Degraded reports whether any fallback path was taken.
func (r *Result) Degraded() bool {
	return len(r.State.QualityFlags) > 0
}
