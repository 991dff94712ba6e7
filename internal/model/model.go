// Package model defines the content document types stored as JSON in the
// document store: events with optional recurrence rules, announcements,
// and site settings.
package model

import (
	"encoding/json"
	"errors"
	"regexp"
)

// Recurrence frequencies.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
	FreqYearly  = "yearly"
)

// Event is one event document. Date is the anchor occurrence: the first
// date of the series for recurring events, or the sole date otherwise.
// StartDate is a legacy alias for Date kept for documents written before
// the field was renamed; readers must call Normalize before using Date.
type Event struct {
	Slug        string          `json:"slug,omitempty"`
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description,omitempty"`
	Date        string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartDate   string          `json:"startDate,omitempty"`
	EndDate     string          `json:"endDate,omitempty"`
	Time        string          `json:"time,omitempty"`
	Location    string          `json:"location,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
	Repeat      *RecurrenceRule `json:"repeat,omitempty"`

	// Revision is the store's version token for this document ("sha" on
	// the wire). Required for updates and deletes.
	Revision string `json:"sha,omitempty"`
}

// Normalize resolves the date/startDate duality: date wins if both are
// present, otherwise startDate fills it in. After Normalize only Date is
// meaningful.
func (e *Event) Normalize() {
	if e.Date == "" {
		e.Date = e.StartDate
	}
}

// RecurrenceRule describes how an event repeats.
type RecurrenceRule struct {
	Frequency  string     `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Interval   int        `json:"interval,omitempty" validate:"omitempty,min=1"`
	ByWeekday  *ByWeekday `json:"byday,omitempty"`
	ByMonthDay int        `json:"bymonthday,omitempty" validate:"omitempty,min=1,max=31"`
	Until      string     `json:"until,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

var nthWeekdayRe = regexp.MustCompile(`^(-?[0-9]+)(SU|MO|TU|WE|TH|FR|SA)$`)

// ByWeekday is the weekday selector of a recurrence rule. On the wire it
// is either a weekday code, an array of weekday codes (weekly rules), or
// a single Nth-weekday-of-month string like "3FR" (monthly rules).
type ByWeekday struct {
	// Days holds plain weekday codes for weekly rules.
	Days []string
	// Nth holds a signed-ordinal selector for monthly rules, e.g. "3FR"
	// for the third Friday or "-1MO" for the last Monday.
	Nth string
}

func (b *ByWeekday) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if nthWeekdayRe.MatchString(s) {
			b.Nth = s
			return nil
		}
		b.Days = []string{s}
		return nil
	}

	var days []string
	if err := json.Unmarshal(data, &days); err == nil {
		b.Days = days
		return nil
	}

	return errors.New("byday must be a string or an array of weekday codes")
}

func (b ByWeekday) MarshalJSON() ([]byte, error) {
	if b.Nth != "" {
		return json.Marshal(b.Nth)
	}
	return json.Marshal(b.Days)
}

// Announcement is a banner shown on the site between StartDate and
// EndDate (both inclusive, end-of-day).
type Announcement struct {
	Slug      string `json:"slug,omitempty"`
	Title     string `json:"title" validate:"required"`
	Text      string `json:"text,omitempty"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`

	Revision string `json:"sha,omitempty"`
}

// PartyInfo is the single free-text document describing party bookings.
type PartyInfo struct {
	Text string `json:"text"`
}

// GeneralSettings is the single site-wide settings document.
type GeneralSettings struct {
	BusinessName string `json:"businessName"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	Instagram    string `json:"instagram"`
	Hours        string `json:"hours"`
}
