package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ticketScanPrompt is shared by all vision-model providers.
const ticketScanPrompt = `You are analyzing a travel ticket or transport receipt. Carefully read all text in the image and extract the following information:

1. **Operator**: the transport company or merchant that issued the ticket (e.g. "Trenitalia", "Trenord", "Italo", "ATM").

2. **Date**: the travel or purchase date printed on the ticket, converted to ISO 8601 format (YYYY-MM-DD). Month names may be in English or Italian.

3. **Total Amount**: the ticket price. Extract only the numeric value (e.g. 9.90 for 9,90 EUR); decimal commas mean decimal points.

Return ONLY valid JSON in this exact format:
{
  "title": "Operator - brief description",
  "date": "YYYY-MM-DD",
  "amount": 0.00
}

Important:
- The title must start with the operator name printed on the ticket
- The date must be in YYYY-MM-DD format
- The amount must be a number (not a string)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// parseTicketJSON parses a vision model's JSON reply, tolerating the
// markdown fencing and surrounding prose models add despite instructions.
func parseTicketJSON(text string) (*TicketData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	text = text[start : end+1]

	var data TicketData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	// Normalize the date to ISO 8601; models sometimes echo the ticket's
	// own format. An unreadable date becomes empty so the caller can pick
	// its own reference day instead of this package touching the clock.
	if data.Date != "" {
		data.Date = normalizeDate(data.Date)
	}

	data.Title = strings.TrimSpace(data.Title)
	if data.Title == "" {
		data.Title = "Unknown ticket"
	}

	return &data, nil
}

func normalizeDate(s string) string {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}
