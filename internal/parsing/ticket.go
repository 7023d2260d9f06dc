package parsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mberti/spesa/internal/calendar"
)

// ticketProvider describes the fixed text format one travel operator
// prints on its tickets: one date pattern in the operator's own format and
// one amount pattern in the operator's own decimal-separator convention.
// The locale is part of the provider definition because at least one
// operator spells month names out in Italian.
type ticketProvider struct {
	description   string
	locale        calendar.Locale
	datePattern   *regexp.Regexp
	amountPattern *regexp.Regexp
	parseDate     func(loc calendar.Locale, match []string) (time.Time, error)
	parseAmount   func(raw string) string
}

// Providers are tried in order; the first whose date pattern matches wins.
var ticketProviders = []ticketProvider{
	{
		// Trenitalia: "Ore 19:37 - 13/12/2019", amount ": 9.90 €"
		description:   "Trenitalia ticket",
		locale:        calendar.LocaleEnglish,
		datePattern:   regexp.MustCompile(`Ore \d{2}:\d{2}\s-\s(\d{2}/\d{2}/\d{4})`),
		amountPattern: regexp.MustCompile(`: (\d{1,2}\.\d{2}) €`),
		parseDate: func(_ calendar.Locale, match []string) (time.Time, error) {
			return time.ParseInLocation("02/01/2006", match[1], time.UTC)
		},
		parseAmount: func(raw string) string { return raw },
	},
	{
		// Trenord: "10 dic 2019", amount "2,60 €"
		description:   "Trenord ticket",
		locale:        calendar.LocaleItalian,
		datePattern:   regexp.MustCompile(`(\d{2})\s(\w{3})\s(\d{4})`),
		amountPattern: regexp.MustCompile(`(\d{1,2},\d{2}) €`),
		parseDate:     parseDayNamedMonthYear,
		parseAmount: func(raw string) string {
			return strings.Replace(raw, ",", ".", 1)
		},
	},
}

// ParseTicket interprets the plain text of a travel-ticket document.
// Providers are matched in a fixed priority order; the first whose date
// pattern matches determines amount format and description. Text matching
// no provider is an unsupported document and yields nil, as does a
// matching provider whose amount or date cannot be read back.
func ParseTicket(text string) *ParsedExpense {
	for _, p := range ticketProviders {
		dateMatch := p.datePattern.FindStringSubmatch(text)
		if dateMatch == nil {
			continue
		}
		payedOn, err := p.parseDate(p.locale, dateMatch)
		if err != nil {
			return nil
		}
		amountMatch := p.amountPattern.FindStringSubmatch(text)
		if amountMatch == nil {
			return nil
		}
		return &ParsedExpense{
			Amount:      p.parseAmount(amountMatch[1]),
			PayedOn:     payedOn,
			Description: p.description,
		}
	}
	return nil
}

func parseDayNamedMonthYear(loc calendar.Locale, match []string) (time.Time, error) {
	day, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}, err
	}
	month, ok := calendar.MonthFromName(loc, match[2])
	if !ok {
		return time.Time{}, fmt.Errorf("unknown month name %q in locale %s", match[2], loc)
	}
	year, err := strconv.Atoi(match[3])
	if err != nil {
		return time.Time{}, err
	}
	if day < 1 || day > calendar.MonthLength(calendar.Date(year, month, 1)) {
		return time.Time{}, fmt.Errorf("no day %d in %s %d", day, month, year)
	}
	return calendar.Date(year, month, day), nil
}
