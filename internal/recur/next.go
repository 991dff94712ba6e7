package recur

import (
	"time"

	"github.com/teambition/rrule-go"

	"scoopcms/internal/model"
)

// NextOccurrence computes the next valid occurrence of ev on or after
// today, as a YYYY-MM-DD string:
//
//   - If the anchor date is today or later it is returned unchanged;
//     future and same-day events are never rewritten.
//   - A one-time event whose date has passed has no next occurrence and
//     yields "".
//   - Otherwise the recurrence rule is expanded from the anchor and the
//     earliest occurrence >= today is returned, or "" once the series is
//     exhausted (its until bound lies before today).
//
// The anchor itself counts as an occurrence when the rule generates it.
// A yearly rule anchored on Feb 29 occurs only in leap years; non-leap
// years are skipped entirely.
//
// today may carry any clock time; only its UTC calendar date is used.
// Malformed dates or rules are reported as *RuleError.
func NextOccurrence(ev model.Event, today time.Time) (string, error) {
	anchor, err := time.ParseInLocation(DateLayout, ev.Date, time.UTC)
	if err != nil {
		return "", &RuleError{Field: "date", Reason: "not a valid date: " + ev.Date}
	}

	today = midnightUTC(today)

	if !anchor.Before(today) {
		return ev.Date, nil
	}

	if ev.Repeat == nil {
		return "", nil
	}

	r, err := buildRule(ev.Repeat, anchor)
	if err != nil {
		return "", err
	}

	next := r.After(today, true)
	if next.IsZero() {
		return "", nil
	}
	return next.UTC().Format(DateLayout), nil
}

// buildRule converts a validated RecurrenceRule plus its anchor into an
// rrule ready for expansion.
func buildRule(rule *model.RecurrenceRule, anchor time.Time) (*rrule.RRule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Freq:     frequencies[rule.Frequency],
		Dtstart:  anchor,
		Interval: rule.Interval,
	}
	if opt.Interval == 0 {
		opt.Interval = 1
	}

	if rule.Until != "" {
		until, err := time.ParseInLocation(DateLayout, rule.Until, time.UTC)
		if err != nil {
			return nil, &RuleError{Field: "until", Reason: "not a valid date: " + rule.Until}
		}
		if until.Before(anchor) {
			return nil, &RuleError{Field: "until", Reason: "must not precede the anchor date"}
		}
		// The bound is inclusive through the end of the day.
		opt.Until = until.Add(24*time.Hour - time.Second)
	}

	if rule.ByWeekday != nil {
		if rule.ByWeekday.Nth != "" {
			n, wd, err := parseNthWeekday(rule.ByWeekday.Nth)
			if err != nil {
				return nil, err
			}
			opt.Byweekday = []rrule.Weekday{wd.Nth(n)}
		} else {
			for _, code := range rule.ByWeekday.Days {
				opt.Byweekday = append(opt.Byweekday, weekdayCodes[code])
			}
		}
	} else if rule.ByMonthDay != 0 {
		opt.Bymonthday = []int{rule.ByMonthDay}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, &RuleError{Field: "repeat", Reason: err.Error()}
	}
	return r, nil
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
