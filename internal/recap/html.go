package recap

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/mberti/spesa/internal/expense"
)

//go:embed static/recap.html
var recapHTML string

var recapTemplate = template.Must(template.New("recap").Parse(recapHTML))

type htmlRow struct {
	ID          uint64
	Date        string
	Amount      string
	Description string
	HasProof    bool
}

type htmlData struct {
	DateStart string
	DateEnd   string
	Rows      []htmlRow
	Total     string
}

// HTML renders the downloadable recap page for a date range.
func HTML(start, end time.Time, expenses []*expense.Expense) (string, error) {
	rows := make([]htmlRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, htmlRow{
			ID:          e.ID,
			Date:        e.PayedOn.Format("2006-01-02"),
			Amount:      e.Amount,
			Description: e.Description,
			HasProof:    e.ProofPath != "",
		})
	}

	var b strings.Builder
	err := recapTemplate.Execute(&b, htmlData{
		DateStart: start.Format("2006-01-02"),
		DateEnd:   end.Format("2006-01-02"),
		Rows:      rows,
		Total:     Total(expenses).StringFixed(2),
	})
	if err != nil {
		return "", fmt.Errorf("rendering recap template: %w", err)
	}
	return b.String(), nil
}
