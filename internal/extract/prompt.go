package extract

import (
	"fmt"
	"strings"
)

const systemPrompt = `You extract structured data from construction project documents (quotes, specifications, fire-protection schedules).
Rules:
- Never invent values. If a field is not stated in the text, return null for it.
- Every value you return must carry a citation {"page", "line_start", "line_end"} pointing at the numbered lines it was read from.
- Lines are given as "[p<page>:l<line>] text". Cite only pages and lines that appear in the input.
- Numbers are plain JSON numbers without currency symbols or thousands separators.
- Each line item carries a confidence between 0 and 1.
- Respond with a single JSON object and nothing else.`

const outputShape = `{
  "document_type": {"value": "quote", "citation": {"page": 1, "line_start": 1, "line_end": 1}} | null,
  "title": cited string | null,
  "supplier": cited string | null,
  "client": cited string | null,
  "project_name": cited string | null,
  "document_date": cited string | null,
  "valid_until": cited string | null,
  "currency": cited string | null,
  "totals": {"subtotal": cited number | null, "tax": cited number | null, "total": cited number | null},
  "line_items": [{"description": cited string, "quantity": cited number | null, "unit": cited string | null,
                  "unit_price": cited number | null, "amount": cited number | null, "confidence": 0.0-1.0}],
  "terms": [cited string],
  "exclusions": [cited string]
}`

// BuildPrompt assembles the user prompt from the rendered chunks that fit the budget.
func BuildPrompt(rendered []string, pageCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The document has %d page(s). Extract the fields below.\n\n", pageCount)
	b.WriteString("Output shape:\n")
	b.WriteString(outputShape)
	b.WriteString("\n\nDocument lines:\n")
	for _, r := range rendered {
		b.WriteString(r)
	}
	return b.String()
}
