package categorizer

import (
	"fmt"
	"strings"

	"github.com/dvloznov/statement-categorizer/internal/domain"
)

// buildCategoryPrompt asks the model to classify one narration into the fixed
// category set and answer with a single JSON object.
func buildCategoryPrompt(description, merchant string) string {
	var b strings.Builder
	b.WriteString("You are a bank transaction categorizer for Indian retail bank statements.\n\n")
	b.WriteString("Classify the transaction into EXACTLY one of these categories (category set ")
	b.WriteString(domain.CategorySetVersion)
	b.WriteString("):\n")
	for _, c := range domain.Categories {
		b.WriteString("  - " + string(c) + "\n")
	}
	b.WriteString("\nGuidance:\n")
	b.WriteString("- UPI/IMPS/NEFT payments to an individual's name are \"Person\".\n")
	b.WriteString("- Transfers between the customer's own accounts are \"Internal_Transfer\".\n")
	b.WriteString("- If nothing fits, use \"Other\" with a low confidence.\n\n")
	b.WriteString("Transaction:\n")
	fmt.Fprintf(&b, "  description: %q\n", description)
	if merchant != "" {
		fmt.Fprintf(&b, "  merchant: %q\n", merchant)
	}
	b.WriteString("\nReturn ONLY raw JSON, no code fences, in this exact shape:\n")
	b.WriteString("{\"category\": \"<one of the categories>\", \"confidence\": <number between 0 and 1>}\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding chatter from a model
// reply, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
