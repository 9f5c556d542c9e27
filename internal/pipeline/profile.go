package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/label-copilot/internal/reasoning"
)

const profilerPrompt = `SYSTEM: Clinical Health Profiler.
INPUT: %s
TASK: Convert user symptoms or diseases into precise bio-chemical triggers (e.g., 'Hypertension' -> 'Sodium/Vasoconstrictors').
List each stated condition, allergy or diet with the nutrients, ingredient classes or mechanisms it implicates. Do not invent conditions that are not stated.`

// ProfileUnavailable replaces the clinical profile when the profiler fails
// and the pipeline is configured to continue.
const ProfileUnavailable = "Clinical profile unavailable."

// ProfileHealth turns free-text health information into clinical triggers.
// The reply is passed through unparsed and errors are returned, not retried.
func ProfileHealth(ctx context.Context, svc reasoning.Service, rawHealth string) (string, error) {
	text, err := svc.Invoke(ctx, fmt.Sprintf(profilerPrompt, strings.TrimSpace(rawHealth)))
	if err != nil {
		return "", eris.Wrap(err, "profile: invoke")
	}
	return text, nil
}
