// Package recur implements the recurring-event scheduling engine: rule
// validation and next-occurrence calculation over plain calendar dates.
// All dates are treated as UTC midnight; there is no timezone handling.
package recur

import (
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"scoopcms/internal/model"
)

// DateLayout is the calendar-date format used by all content documents.
const DateLayout = "2006-01-02"

// RuleError reports a malformed recurrence configuration. It is a
// configuration problem with the document, not a transient failure, so
// callers surface it per document and move on.
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return "recurrence rule: " + e.Field + ": " + e.Reason
}

var weekdayCodes = map[string]rrule.Weekday{
	"SU": rrule.SU,
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
}

var frequencies = map[string]rrule.Frequency{
	model.FreqDaily:   rrule.DAILY,
	model.FreqWeekly:  rrule.WEEKLY,
	model.FreqMonthly: rrule.MONTHLY,
	model.FreqYearly:  rrule.YEARLY,
}

// ValidateRule checks the structural invariants of a recurrence rule:
// a known frequency, interval >= 1, a parseable until date, and the
// per-frequency selector rules (weekly rules take a weekday list,
// monthly rules take exactly zero or one of an Nth-weekday selector or
// a day-of-month, daily and yearly rules take neither).
func ValidateRule(r *model.RecurrenceRule) error {
	if r == nil {
		return nil
	}

	if _, ok := frequencies[r.Frequency]; !ok {
		return &RuleError{Field: "frequency", Reason: "unknown frequency " + strconv.Quote(r.Frequency)}
	}
	if r.Interval < 0 {
		return &RuleError{Field: "interval", Reason: "must be >= 1"}
	}
	if r.ByMonthDay < 0 || r.ByMonthDay > 31 {
		return &RuleError{Field: "bymonthday", Reason: "must be between 1 and 31"}
	}
	if r.Until != "" {
		if _, err := time.Parse(DateLayout, r.Until); err != nil {
			return &RuleError{Field: "until", Reason: "not a valid date: " + r.Until}
		}
	}

	switch r.Frequency {
	case model.FreqWeekly:
		if r.ByMonthDay != 0 {
			return &RuleError{Field: "bymonthday", Reason: "not allowed for weekly rules"}
		}
		if r.ByWeekday != nil {
			if r.ByWeekday.Nth != "" {
				return &RuleError{Field: "byday", Reason: "nth-weekday selector is only valid for monthly rules"}
			}
			for _, code := range r.ByWeekday.Days {
				if _, ok := weekdayCodes[code]; !ok {
					return &RuleError{Field: "byday", Reason: "unknown weekday code " + strconv.Quote(code)}
				}
			}
		}
	case model.FreqMonthly:
		if r.ByWeekday != nil && r.ByMonthDay != 0 {
			return &RuleError{Field: "byday", Reason: "byday and bymonthday are mutually exclusive"}
		}
		if r.ByWeekday != nil {
			if r.ByWeekday.Nth == "" {
				return &RuleError{Field: "byday", Reason: "monthly rules need an nth-weekday selector like \"3FR\""}
			}
			if _, _, err := parseNthWeekday(r.ByWeekday.Nth); err != nil {
				return err
			}
		}
	default:
		// daily / yearly
		if r.ByWeekday != nil {
			return &RuleError{Field: "byday", Reason: "not allowed for " + r.Frequency + " rules"}
		}
		if r.ByMonthDay != 0 {
			return &RuleError{Field: "bymonthday", Reason: "not allowed for " + r.Frequency + " rules"}
		}
	}

	return nil
}

// parseNthWeekday splits a selector like "3FR" or "-1MO" into its
// ordinal and weekday. Ordinals 1-4 count from the start of the month;
// -1 is the last matching weekday regardless of month length.
func parseNthWeekday(s string) (int, rrule.Weekday, error) {
	m := nthWeekdayPattern(s)
	if m == nil {
		return 0, rrule.Weekday{}, &RuleError{Field: "byday", Reason: "malformed nth-weekday selector " + strconv.Quote(s)}
	}

	n, err := strconv.Atoi(m[0])
	if err != nil {
		return 0, rrule.Weekday{}, &RuleError{Field: "byday", Reason: "malformed nth-weekday selector " + strconv.Quote(s)}
	}
	if n < -1 || n == 0 || n > 4 {
		return 0, rrule.Weekday{}, &RuleError{Field: "byday", Reason: "ordinal must be 1-4 or -1, got " + m[0]}
	}

	wd, ok := weekdayCodes[m[1]]
	if !ok {
		return 0, rrule.Weekday{}, &RuleError{Field: "byday", Reason: "unknown weekday code " + strconv.Quote(m[1])}
	}

	return n, wd, nil
}

// nthWeekdayPattern returns [ordinal, code] or nil if s does not end in
// a two-letter weekday code preceded by a signed integer.
func nthWeekdayPattern(s string) []string {
	if len(s) < 3 {
		return nil
	}
	return []string{s[:len(s)-2], s[len(s)-2:]}
}
