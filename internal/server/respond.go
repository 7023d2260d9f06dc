package server

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/mberti/spesa/internal/expense"
	"github.com/mberti/spesa/internal/slack"
)

var yearMonthPattern = regexp.MustCompile(`(\d{4})-(\d{2})`)

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// expenseAddedResponse announces a freshly stored expense with an undo
// button wired back through the action grammar.
func expenseAddedResponse(e *expense.Expense) *slack.Response {
	desc := e.Description
	if desc == "" {
		desc = "no description"
	}
	r := slack.WithBlocks(
		slack.Section(fmt.Sprintf("Saved expense *%d*: %s on %s (%s).",
			e.ID, e.Amount, e.PayedOn.Format("2006-01-02"), desc)),
		slack.Buttons(
			slack.Button{Text: "Delete", Value: fmt.Sprintf("delete %d", e.ID), Style: "danger"},
		),
	)
	r.Text = fmt.Sprintf("Saved expense %d: %s on %s.", e.ID, e.Amount, e.PayedOn.Format("2006-01-02"))
	return r
}

// PendingAdded posts a confirm/discard prompt for a pending expense on
// the employee's channel.
func (s *Server) PendingAdded(ctx context.Context, channelID string, p *expense.PendingExpense) error {
	desc := p.Description
	if desc == "" {
		desc = "no description"
	}
	blocks := []slack.Block{
		slack.Section(fmt.Sprintf("I read a ticket: %s on %s (%s). Keep it?",
			p.Amount, p.PayedOn.Format("2006-01-02"), desc)),
		slack.Buttons(
			slack.Button{Text: "Confirm", Value: fmt.Sprintf("expense c %d", p.ID), Style: "primary"},
			slack.Button{Text: "Discard", Value: fmt.Sprintf("expense d %d", p.ID), Style: "danger"},
		),
	}
	fallback := fmt.Sprintf("Pending expense %d: %s on %s.", p.ID, p.Amount, p.PayedOn.Format("2006-01-02"))
	return s.chat.PostBlocks(ctx, channelID, fallback, blocks)
}

// IngestFailed tells the employee an emailed ticket could not be read.
func (s *Server) IngestFailed(ctx context.Context, channelID, filename, reason string) error {
	return s.chat.PostMessage(ctx, channelID,
		fmt.Sprintf("I could not read %s from your mail: %s.", filename, reason))
}
