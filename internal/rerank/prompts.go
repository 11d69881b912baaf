package rerank

import (
	"fmt"
	"strings"

	"github.com/anzsic/classify/internal/domain"
)

const systemPromptBase = `You are an expert ANZSIC (Australian and New Zealand Standard Industrial Classification) coder.
Your job is to match a poorly-worded occupation or business description provided by a non-expert to the correct ANZSIC codes.

You will be given:
1. The user's raw input description.
2. A list of candidate ANZSIC codes retrieved by a search system, each with its description, class, group, division, and (when present) a "Not included" exclusion note.

Your task:
- Carefully read each candidate.
- Use the "Not included" exclusion text to eliminate candidates that are explicitly ruled out.
- Select the best-matching codes, ranked from most to least likely, at most the requested count.
- For each selected code provide a short plain-English reason explaining why it matches.
- If fewer candidates genuinely match, return fewer entries — do not pad with poor matches.

Respond ONLY with a JSON array of objects in this exact schema, no markdown fences:
[{"rank": 1, "code": "X1234", "reason": "..."}]
`

const csvReferenceHeaderFormat = "\n%[1]s\nFULL ANZSIC REFERENCE — the candidate list above may be insufficient.\nUse this reference to find a better match if none of the candidates fit.\n%[1]s\n"

const candidateBlockFormat = "[%d] Code: %s\n    Occupation: %s\n    Class: %s\n    Group: %s\n    Division: %s\n"

const exclusionLineFormat = "    Not included: %s\n"

const userMessageFormat = "User input: %q\n\nCandidates (%d total):\n%s\nReturn the top %d matches as a JSON array.\n"

const csvDivider = "--------------------------------------------------------------------------"

// BuildSystemPrompt assembles the system prompt, optionally extended with
// the CSV-like catalogue reference for the fallback attempt. The prompt
// always contains the literal token "JSON" per the structured-output
// requirement.
func BuildSystemPrompt(includeReference bool, csvReference string) string {
	if !includeReference || csvReference == "" {
		return systemPromptBase
	}
	return systemPromptBase + fmt.Sprintf(csvReferenceHeaderFormat, csvDivider) + csvReference
}

// BuildCandidateBlock renders the numbered candidate list for the user message.
func BuildCandidateBlock(candidates []domain.Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf(candidateBlockFormat, i+1, c.Code, c.Description, c.ClassDesc, c.GroupDesc, c.DivisionDesc))
		if c.ClassExclusions != "" {
			b.WriteString(fmt.Sprintf(exclusionLineFormat, c.ClassExclusions))
		}
	}
	return b.String()
}

// BuildUserMessage assembles the user-turn message.
func BuildUserMessage(query string, candidates []domain.Candidate, topK int) string {
	return fmt.Sprintf(userMessageFormat, query, len(candidates), BuildCandidateBlock(candidates), topK)
}

// BuildCSVReference renders catalogue records as "code: description" lines,
// one per line, for the fallback prompt's full-reference listing.
func BuildCSVReference(records []domain.CatalogueRecord) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.Code)
		b.WriteString(": ")
		b.WriteString(r.Description)
		b.WriteString("\n")
	}
	return b.String()
}
