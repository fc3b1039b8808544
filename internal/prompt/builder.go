package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"esgrag/internal/domain"
)

const (
	// NoKPIData replaces the KPI block when nothing was retrieved.
	NoKPIData = "No KPI data found."
	// NoNarrative replaces the narrative block when nothing was retrieved.
	NoNarrative = "No narrative context found."

	// System is the system role sent with every completion.
	System = "You are a precise ESG reporting assistant."

	separator = "------------------------------------------------------------"
)

const preamble = `You are an academic sustainability and ESG reporting analyst.

Answer the user's question using ONLY the information provided below.

MANDATORY RULES:
- If KPI values are available, you MUST report them explicitly.
- Always specify:
  • KPI name
  • reporting year
  • unit of measurement
- NEVER invent or estimate values.
- If a value is not available, clearly state that it is not reported.
- Use narrative text ONLY to explain context, scope, or trends.
- Maintain a neutral, professional, academic tone.
- Do NOT use external knowledge.`

const answerStructure = `ANSWER STRUCTURE:
1. Direct answer to the question.
2. Explicit listing of KPI values (if available).
3. Short explanatory paragraph (only if relevant).`

// Build assembles the grounded user prompt. Empty inputs become explicit
// not-found sentinels so the model is never left to fill a silent gap.
func Build(question string, kpis []domain.KpiRecord, narrative []domain.NarrativeRecord) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	section(&b, "USER QUESTION:", question)
	section(&b, "STRUCTURED KPI DATA:", kpiBlock(kpis))
	section(&b, "NARRATIVE CONTEXT:", narrativeBlock(narrative))

	b.WriteString(separator)
	b.WriteString("\n")
	b.WriteString(answerStructure)
	b.WriteString("\n")
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	b.WriteString(separator)
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n\n")
}

func kpiBlock(kpis []domain.KpiRecord) string {
	if len(kpis) == 0 {
		return NoKPIData
	}
	data, err := json.MarshalIndent(kpis, "", "  ")
	if err != nil {
		// KpiRecord holds only strings and a float; only NaN/Inf can fail here.
		return NoKPIData
	}
	return string(data)
}

func narrativeBlock(narrative []domain.NarrativeRecord) string {
	if len(narrative) == 0 {
		return NoNarrative
	}
	parts := make([]string, len(narrative))
	for i, n := range narrative {
		parts[i] = fmt.Sprintf("Page %d: %s", n.Page, n.Text)
	}
	return strings.Join(parts, "\n\n")
}
