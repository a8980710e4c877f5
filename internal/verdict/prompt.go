package verdict

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/brand-guardian/internal/reasoning"
	"github.com/danielpatrickdp/brand-guardian/internal/retrieval"
)

// #region system-prompt
const systemPrompt = `You are a brand and regulatory compliance auditor for video advertisements.
You receive evidence extracted from one advertisement (speech transcript and on-screen text)
and excerpts from the advertising policy knowledge base.

Decide whether the advertisement violates any of the quoted rules. Cite rules by their
[rule ...] tag. Only rely on the quoted policy text; if no rule applies, report no violation.

Answer with exactly one JSON object and nothing else:
{
  "violation": boolean,
  "violated_rules": [string],
  "failure_reasons": [string],
  "recommendations": [string],
  "explanation": string,
  "severity": "none" | "low" | "medium" | "high",
  "confidence": number between 0 and 1
}

When "violation" is false, "severity" must be "none" and "violated_rules" and
"failure_reasons" must be empty arrays. When "violation" is true, "severity" must not be "none".`

const noRulesNotice = `No closely matching rules were found in the policy knowledge base for this
evidence. Do not invent rules. Report what you can and keep your confidence low.`

// #endregion system-prompt

// #region build-prompt

// BuildPrompt embeds the evidence and every retrieved chunk, each tagged with its
// chunk id, source document, page and similarity score so the model can cite it.
func BuildPrompt(evidence string, chunks []retrieval.Scored) reasoning.Prompt {
	var b strings.Builder
	b.WriteString("## Policy excerpts\n\n")
	if len(chunks) == 0 {
		b.WriteString(noRulesNotice)
		b.WriteString("\n")
	}
	for _, c := range chunks {
		fmt.Fprintf(&b, "[rule %s | source=%s | page=%d | score=%.3f]\n%s\n\n",
			c.Chunk.ID, c.Chunk.Source, c.Chunk.Page, c.Score, strings.TrimSpace(c.Chunk.Text))
	}
	b.WriteString("\n## Advertisement evidence\n\n")
	b.WriteString(strings.TrimSpace(evidence))
	b.WriteString("\n\n## Task\n\nReturn the compliance verdict as a single JSON object.")
	return reasoning.Prompt{System: systemPrompt, User: b.String()}
}

// correctivePrompt repeats the original request with the rejected answer and the
// reason it was rejected.
func correctivePrompt(original reasoning.Prompt, rejected string, cause error) reasoning.Prompt {
	var b strings.Builder
	b.WriteString(original.User)
	b.WriteString("\n\n## Previous answer (rejected)\n\n")
	b.WriteString(rejected)
	fmt.Fprintf(&b, "\n\nThe previous answer was rejected: %v\n", cause)
	b.WriteString("Fix it. Reply with only the corrected JSON object, with every required field present.")
	return reasoning.Prompt{System: original.System, User: b.String()}
}

// #endregion build-prompt
