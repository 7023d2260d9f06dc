// Package parsing turns free-form chat text, ticket document text and
// encoded button payloads into structured records. All parsers are pure:
// the reference time and the user's UTC offset come in as arguments, and
// every failure path returns an absent result rather than an error.
package parsing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mberti/spesa/internal/calendar"
)

// ParsedExpense is the outcome of interpreting one expense command or one
// ticket document: an amount (kept as the literal decimal string the user
// typed), the resolved payment date and an optional description ("" when
// none was given).
type ParsedExpense struct {
	Amount      string
	PayedOn     time.Time
	Description string
}

var (
	amountPattern   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	dayTokenPattern = regexp.MustCompile(`(\d{1,2}(?:[/-]\d{1,2})?)`)
	dayMonthPattern = regexp.MustCompile(`(\d{1,2})[/-]?(\d{1,2})?`)
	wordPattern     = regexp.MustCompile(`(\w+)`)
)

// ParseExpense interprets an expense command:
//
//	28.5                 expense of 28.50 payed today
//	28.5 15              expense payed on the most recent 15th
//	28.5 15/11           expense payed on the most recent Nov 15th
//	28.5 yesterday taxi  "yesterday" in the user's timezone, description "taxi"
//
// The amount is mandatory; the date defaults to today; whatever is left
// becomes the description. utcOffsetMinutes shifts now into the user's
// local day before "yesterday" is computed. A malformed date token makes
// the whole parse fail: the result is nil, same as when no amount is found.
func ParseExpense(text string, now time.Time, utcOffsetMinutes int) *ParsedExpense {
	c := NewCursor(text)

	amount, ok := c.Extract(amountPattern)
	if !ok {
		return nil
	}

	var payedOn time.Time
	rest := strings.ToLower(c.Text())
	if strings.HasPrefix(rest, "yes") || strings.HasPrefix(rest, "ier") {
		local := now.UTC().Add(time.Duration(utcOffsetMinutes) * time.Minute)
		payedOn = calendar.PlusDays(calendar.DateOf(local), -1)
		c.Extract(wordPattern)
	} else if token, ok := c.Extract(dayTokenPattern); ok {
		resolved, err := interpretDay(token.Get(0), now)
		if err != nil {
			return nil
		}
		payedOn = resolved
	} else {
		payedOn = calendar.DateOf(now)
	}

	return &ParsedExpense{
		Amount:      amount.Get(0),
		PayedOn:     payedOn,
		Description: c.Text(),
	}
}

// interpretDay resolves a "d" or "d/m" token to the most recent matching
// date not after today.
func interpretDay(token string, today time.Time) (time.Time, error) {
	c := NewCursor(token)
	g, ok := c.Extract(dayMonthPattern)
	if !ok {
		return calendar.DateOf(today), nil
	}

	day, err := strconv.Atoi(g.Get(0))
	if err != nil {
		return time.Time{}, err
	}
	if g.Has(1) {
		month, err := strconv.Atoi(g.Get(1))
		if err != nil {
			return time.Time{}, err
		}
		return calendar.ResolveDayMonth(today, day, month)
	}
	return calendar.ResolveDay(today, day)
}
