package parser

import (
	"fmt"

	"bankparse/internal/domain"
	"bankparse/internal/port"
)

// PromptOptions configures the statement extraction prompt.
type PromptOptions struct {
	// DefaultCurrency is the ISO code the model should assume when the statement names none.
	DefaultCurrency string
}

// BuildStatementPrompt returns the extraction instructions shared by every provider.
func BuildStatementPrompt(opts PromptOptions) string {
	currency := opts.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	return `You are a bank statement parsing expert. Extract the bank statement data from the provided content into the JSON structure below.

IMPORTANT INSTRUCTIONS:
- account_number: keep only the last 4 digits visible and mask the others with *.
- All dates must be in YYYY-MM-DD format.
- Transaction amounts are positive numbers; use "type" to give the direction ("credit" or "debit"). A CR suffix means credit, DR or DB means debit.
- Write every number as a plain JSON number: no currency symbols, no thousands separators, no quotes.
- If the content is not part of a statement (contact details, terms, advertising), do not invent data: return "transactions": [] and leave unknown fields null. Never omit the "transactions" field.
- Fields you cannot find must be null.
- If the content contains more transactions than you can output in this response, set "has_more" to true and put in "next_page_hint" a short description of where to resume (for example the date and description of the last transaction you returned). Otherwise set "has_more" to false and "next_page_hint" to null.
- Currency is an ISO 4217 code; use "` + currency + `" if the statement does not state one.

Return ONLY valid JSON with no markdown formatting, no code fences, no comments, no trailing commas and no explanation, just the raw JSON object.

Schema:
{
  "account_holder": string | null,
  "bank_name": string | null,
  "account_number": string | null,
  "statement_period": { "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD" } | null,
  "opening_balance": number | null,
  "closing_balance": number | null,
  "currency": string | null,
  "transactions": [
    {
      "date": "YYYY-MM-DD",
      "description": string,
      "amount": number,
      "type": "credit" | "debit",
      "category": string | null,
      "balance": number | null
    }
  ],
  "has_more": boolean,
  "next_page_hint": string | null
}

Output the JSON object only.`
}

// BuildUserMessage returns the per-call instruction that accompanies a unit.
func BuildUserMessage(unit port.Unit, hint string) string {
	subject := "this bank statement text"
	if unit.Kind == domain.UnitImage {
		subject = "this bank statement page"
		if unit.Page > 0 {
			subject = fmt.Sprintf("page %d of this bank statement", unit.Page)
		}
	}
	if hint == "" {
		return fmt.Sprintf("Parse %s and return the JSON object.", subject)
	}
	return fmt.Sprintf("Continue parsing %s starting from: %s. Do not repeat transactions returned before that point.", subject, hint)
}
