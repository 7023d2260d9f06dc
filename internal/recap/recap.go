// Package recap renders expense summaries: a monospaced table for chat and
// an HTML page for download.
package recap

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mberti/spesa/internal/expense"
)

// Total sums the expense amounts. Amounts are stored as the user typed
// them, so a decimal comma is normalized before parsing; an amount that
// still cannot be read counts as zero rather than sinking the whole recap.
func Total(expenses []*expense.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		amount, err := decimal.NewFromString(strings.Replace(e.Amount, ",", ".", 1))
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total
}

// Table renders the expenses as an aligned monospaced table with a total
// row, ready to drop into a code block.
func Table(expenses []*expense.Expense) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "id\tdate\tamount\tdescription")
	for _, e := range expenses {
		desc := e.Description
		if e.ProofPath != "" {
			desc += " 📎"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			e.ID, e.PayedOn.Format("2006-01-02"), e.Amount, strings.TrimSpace(desc))
	}
	fmt.Fprintf(w, "\t\t%s\ttotal\n", Total(expenses).StringFixed(2))
	w.Flush()

	return strings.TrimRight(b.String(), "\n")
}

// RangeLabel names a date range the way recap titles do, collapsing a
// whole single month to its YYYY-MM form.
func RangeLabel(start, end time.Time) string {
	if start.Day() == 1 && start.Month() == end.Month() && start.Year() == end.Year() {
		return start.Format("2006-01")
	}
	return fmt.Sprintf("%s .. %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
}
