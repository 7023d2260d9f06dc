package parsing

import (
	"regexp"
	"strconv"
	"time"

	"github.com/mberti/spesa/internal/calendar"
)

// Action is the closed set of commands the bot embeds in button payloads.
// The dispatcher type-switches over the variants, so adding a verb without
// handling it shows up as an unhandled case at review time rather than a
// silent fallthrough at runtime.
type Action interface {
	isAction()
}

// Ask defers to a follow-up UI prompt identified by a question tag.
type Ask struct {
	Question    string
	RequestText string
}

// DownloadAttachments bulk-fetches expense proofs for a date range,
// optionally merged into a single bundle.
type DownloadAttachments struct {
	DateStart time.Time
	DateEnd   time.Time
	Merge     bool
}

// DeleteExpense deletes one expense by id.
type DeleteExpense struct {
	ExpenseID uint64
}

// HtmlRecap renders the HTML summary for a date range.
type HtmlRecap struct {
	DateStart time.Time
	DateEnd   time.Time
}

// Recap renders the tabular summary for a date range.
type Recap struct {
	DateStart time.Time
	DateEnd   time.Time
}

// Outcome settles a pending expense one way or the other.
type Outcome string

const (
	OutcomeConfirm Outcome = "confirm"
	OutcomeDiscard Outcome = "discard"
)

// ResolvePending settles a pending email-derived expense.
type ResolvePending struct {
	PendingID uint64
	Outcome   Outcome
}

// Destroy is the joke terminal action. It does nothing, dramatically.
type Destroy struct{}

func (Ask) isAction()                 {}
func (DownloadAttachments) isAction() {}
func (DeleteExpense) isAction()       {}
func (HtmlRecap) isAction()           {}
func (Recap) isAction()               {}
func (ResolvePending) isAction()      {}
func (Destroy) isAction()             {}

var (
	verbPattern      = regexp.MustCompile(`(\w+)`)
	questionPattern  = regexp.MustCompile(`(-)(\w+)`)
	mergeFlagPattern = regexp.MustCompile(`(-m)`)
	yearMonthPattern = regexp.MustCompile(`(\d{4})-(\d{2})`)
	idPattern        = regexp.MustCompile(`(\d+)`)
	outcomePattern   = regexp.MustCompile(`([cd])`)
)

// ParseAction tokenizes an encoded command string into one Action:
//
//	ask -<tag> <free text>
//	download [-m] <YYYY-MM>
//	delete <id>
//	html <YYYY-MM>
//	recap <YYYY-MM>
//	expense <c|d> <id>
//	destroy
//
// An unrecognized verb or missing argument yields nil; the caller decides
// whether to log or answer with a help message.
func ParseAction(text string) Action {
	c := NewCursor(text)

	verb, ok := c.Extract(verbPattern)
	if !ok {
		return nil
	}

	switch verb.Get(0) {
	case "ask":
		q, ok := c.Extract(questionPattern)
		if !ok {
			return nil
		}
		return Ask{Question: q.Get(1), RequestText: c.Text()}

	case "download":
		_, merge := c.Extract(mergeFlagPattern)
		start, end, ok := extractYearMonth(c)
		if !ok {
			return nil
		}
		return DownloadAttachments{DateStart: start, DateEnd: end, Merge: merge}

	case "delete":
		id, ok := extractID(c)
		if !ok {
			return nil
		}
		return DeleteExpense{ExpenseID: id}

	case "html":
		start, end, ok := extractYearMonth(c)
		if !ok {
			return nil
		}
		return HtmlRecap{DateStart: start, DateEnd: end}

	case "recap":
		start, end, ok := extractYearMonth(c)
		if !ok {
			return nil
		}
		return Recap{DateStart: start, DateEnd: end}

	case "expense":
		o, ok := c.Extract(outcomePattern)
		if !ok {
			return nil
		}
		outcome := OutcomeDiscard
		if o.Get(0) == "c" {
			outcome = OutcomeConfirm
		}
		id, ok := extractID(c)
		if !ok {
			return nil
		}
		return ResolvePending{PendingID: id, Outcome: outcome}

	case "destroy":
		return Destroy{}
	}

	return nil
}

// extractYearMonth consumes a YYYY-MM token and returns the first and last
// day of that month.
func extractYearMonth(c *Cursor) (start, end time.Time, ok bool) {
	g, ok := c.Extract(yearMonthPattern)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	year, err := strconv.Atoi(g.Get(0))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	month, err := strconv.Atoi(g.Get(1))
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, time.Time{}, false
	}
	start, end = calendar.YearMonthBounds(year, time.Month(month))
	return start, end, true
}

func extractID(c *Cursor) (uint64, bool) {
	g, ok := c.Extract(idPattern)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(g.Get(0), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
