package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

const riskPrompt = `SYSTEM: Clinical Reasoning Engine.
USER: %s
PRODUCT DATA: %s
TASK: Conduct a risk analysis.
1. Identify direct conflicts between user health and ingredient manufacturing.
2. Highlight 'Regulatory Gaps' (e.g., banned in EU but user is consuming it).
3. Quantify uncertainty if scientific data is conflicting.`

// RiskUnavailable replaces the risk analysis when the analyzer fails and the
// pipeline is configured to continue.
const RiskUnavailable = "Risk analysis unavailable."

// AnalyzeRisk cross-references the clinical profile against the evidence
// collection. The reply is passed through unparsed.
func AnalyzeRisk(ctx context.Context, svc reasoning.Service, profile string, kb []model.IngredientProfile) (string, error) {
	if kb == nil {
		kb = []model.IngredientProfile{}
	}
	data, err := json.Marshal(kb)
	if err != nil {
		return "", eris.Wrap(err, "risk: encode evidence")
	}
	text, err := svc.Invoke(ctx, fmt.Sprintf(riskPrompt, profile, data))
	if err != nil {
		return "", eris.Wrap(err, "risk: invoke")
	}
	return text, nil
}
