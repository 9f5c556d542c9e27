package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/label-copilot/internal/model"
)

func TestValidateNarrative_Valid(t *testing.T) {
	permitted := PermittedDecisions(false, nil)
	for _, d := range permitted {
		t.Run(string(d), func(t *testing.T) {
			assert.Empty(t, ValidateNarrative(validNarrative("Lay's Classic", string(d)), permitted))
		})
	}
}

func TestValidateNarrative_HeaderVariations(t *testing.T) {
	text := `Scanning your Oreo...
Quick Decision: Not ideal, keep it to two cookies.
**Why this matters:**
- Sugar: 14g is 28% of the 50g daily reference.
Trade-offs: Cheap treat, but lots of added sugar.
**What I’m not sure about:**
- Cocoa source: not listed.
Better option: Simple Mills cookies.`

	assert.Empty(t, ValidateNarrative(text, PermittedDecisions(false, nil)))
}

func TestValidateNarrative_MissingSection(t *testing.T) {
	text := strings.Replace(validNarrative("Oreo", "Not ideal"), "**Tradeoffs**: Tasty and filling, but easy to overeat.\n", "", 1)

	problems := ValidateNarrative(text, PermittedDecisions(false, nil))
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "**Tradeoffs**:")
}

func TestValidateNarrative_OutOfOrder(t *testing.T) {
	text := `Scanning your Oreo...

**Better Options**:
- Simple Mills (Why it's better: almond flour)

**Quick Decision:** Not ideal.
**Why This Matters To You:**
- Sugar: high.
**Tradeoffs**: Tasty but sugary.
**What I'm Unsure About**:
- Cocoa: unknown.`

	problems := ValidateNarrative(text, PermittedDecisions(false, nil))
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "**Better Options**:")
}

func TestValidateNarrative_Decisions(t *testing.T) {
	whole := PermittedDecisions(true, nil)

	problems := ValidateNarrative(validNarrative("Organic Date Bites", "Not ideal"), whole)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `"Not ideal" is not allowed`)

	problems = ValidateNarrative(validNarrative("Organic Date Bites", "Probably fine"), whole)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "must start with one of: Generally safe, OK in moderation")

	conflict := PermittedDecisions(false, []string{"peanuts"})
	assert.Empty(t, ValidateNarrative(validNarrative("Peanut Cups", string(model.DecisionSkip)), conflict))
}

func TestValidateNarrative_TradeoffsNeedsColon(t *testing.T) {
	text := strings.Replace(validNarrative("Oreo", "Not ideal"), "**Tradeoffs**:", "**Tradeoffs**", 1)
	problems := ValidateNarrative(text, PermittedDecisions(false, nil))
	assert.NotEmpty(t, problems)
}
