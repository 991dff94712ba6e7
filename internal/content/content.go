// Package content is the service layer over the document store: event,
// announcement, and settings documents, with slugs, timestamps, and the
// date/startDate legacy normalization applied at the read boundary.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appLog "scoopcms/internal/log"
	"scoopcms/internal/model"
	"scoopcms/internal/recur"
	"scoopcms/internal/store"
)

// Storage layout inside the content repository.
const (
	EventsDir        = "content/events"
	AnnouncementsDir = "content/announcements"
	SettingsPath     = "content/settings/general.json"
	PartiesPath      = "content/parties/info.json"
)

// Service exposes CRUD operations over the content documents.
type Service struct {
	store    store.Store
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds a Service on top of st.
func NewService(st store.Store) *Service {
	return &Service{
		store:    st,
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithNow overrides the clock, for deterministic tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ─── Events ───────────────────────────────────────────────────────────────────

// Events lists every event document, normalized, with slug and revision
// filled in. Documents that fail to read or parse are skipped with a
// warning so one broken file cannot hide the rest of the list.
func (s *Service) Events(ctx context.Context) ([]model.Event, error) {
	entries, err := s.store.List(ctx, EventsDir)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]model.Event, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}

		doc, err := s.store.Read(ctx, e.Path)
		if err != nil {
			appLog.Warn("skipping unreadable event document", "path", e.Path, "err", err)
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(doc.Content, &ev); err != nil {
			appLog.Warn("skipping malformed event document", "path", e.Path, "err", err)
			continue
		}

		ev.Slug = strings.TrimSuffix(e.Name, ".json")
		ev.Revision = doc.Revision
		ev.Normalize()
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Date < events[j].Date })
	return events, nil
}

// CreateEvent validates and stores a new event document. The slug is
// derived from today's date plus the kebab-cased title and becomes the
// document's storage key; it is immutable afterwards.
func (s *Service) CreateEvent(ctx context.Context, ev model.Event) (string, error) {
	if err := s.validateEvent(&ev); err != nil {
		return "", err
	}

	now := s.now().UTC()
	slug := now.Format(recur.DateLayout) + "-" + Slugify(ev.Title)

	ev.CreatedAt = now.Format(time.RFC3339)
	ev.UpdatedAt = ev.CreatedAt

	body, err := marshalEvent(ev)
	if err != nil {
		return "", err
	}

	if _, err := s.store.Write(ctx, eventPath(slug), body, "", "Add event '"+ev.Title+"'"); err != nil {
		return "", fmt.Errorf("create event %s: %w", slug, err)
	}
	return slug, nil
}

// GetEvent fetches a single event document by slug.
func (s *Service) GetEvent(ctx context.Context, slug string) (model.Event, error) {
	doc, err := s.store.Read(ctx, eventPath(slug))
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", slug, err)
	}

	var ev model.Event
	if err := json.Unmarshal(doc.Content, &ev); err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", slug, err)
	}

	ev.Slug = slug
	ev.Revision = doc.Revision
	ev.Normalize()
	return ev, nil
}

// UpdateEvent rewrites an event document. revision must be the
// document's current token; a stale token surfaces store.ErrConflict.
func (s *Service) UpdateEvent(ctx context.Context, slug string, ev model.Event, revision string) error {
	if err := s.validateEvent(&ev); err != nil {
		return err
	}

	ev.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	body, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	if _, err := s.store.Write(ctx, eventPath(slug), body, revision, "Update event: "+slug); err != nil {
		return fmt.Errorf("update event %s: %w", slug, err)
	}
	return nil
}

// DeleteEvent removes an event document. Deletion is immediate and
// irreversible at this layer; history lives in the underlying store.
func (s *Service) DeleteEvent(ctx context.Context, slug, revision string) error {
	if err := s.store.Delete(ctx, eventPath(slug), revision, "Delete event: "+slug); err != nil {
		return fmt.Errorf("delete event %s: %w", slug, err)
	}
	return nil
}

// EventDate pairs a slug with its anchor date, for the diagnostic
// date listing.
type EventDate struct {
	Slug string `json:"slug"`
	Date string `json:"date"`
}

// DateListing is the result of ListDates: the dates found plus messages
// for any documents that could not be processed.
type DateListing struct {
	Dates  []EventDate `json:"eventDates"`
	Errors []string    `json:"errors"`
}

// ListDates enumerates the anchor date of every event document, sorted
// ascending. Per-document failures are reported, not fatal.
func (s *Service) ListDates(ctx context.Context) (DateListing, error) {
	listing := DateListing{Dates: []EventDate{}, Errors: []string{}}

	entries, err := s.store.List(ctx, EventsDir)
	if err != nil {
		return listing, fmt.Errorf("list events: %w", err)
	}

	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}

		doc, err := s.store.Read(ctx, e.Path)
		if err != nil {
			listing.Errors = append(listing.Errors, fmt.Sprintf("failed to process %s: %v", e.Name, err))
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(doc.Content, &ev); err != nil {
			listing.Errors = append(listing.Errors, fmt.Sprintf("failed to process %s: %v", e.Name, err))
			continue
		}

		ev.Normalize()
		if ev.Date == "" {
			continue
		}
		listing.Dates = append(listing.Dates, EventDate{
			Slug: strings.TrimSuffix(e.Name, ".json"),
			Date: ev.Date,
		})
	}

	sort.Slice(listing.Dates, func(i, j int) bool { return listing.Dates[i].Date < listing.Dates[j].Date })
	return listing, nil
}

// ─── Announcements ────────────────────────────────────────────────────────────

// Announcements lists announcement documents. With full=false only
// announcements whose start/end window covers today (end-of-day
// inclusive) are returned.
func (s *Service) Announcements(ctx context.Context, full bool) ([]model.Announcement, error) {
	entries, err := s.store.List(ctx, AnnouncementsDir)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.Announcement{}, nil
		}
		return nil, fmt.Errorf("list announcements: %w", err)
	}

	today := s.now().UTC().Format(recur.DateLayout)

	out := make([]model.Announcement, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}

		doc, err := s.store.Read(ctx, e.Path)
		if err != nil {
			appLog.Warn("skipping unreadable announcement", "path", e.Path, "err", err)
			continue
		}

		var a model.Announcement
		if err := json.Unmarshal(doc.Content, &a); err != nil {
			appLog.Warn("skipping malformed announcement", "path", e.Path, "err", err)
			continue
		}

		a.Slug = strings.TrimSuffix(e.Name, ".json")
		a.Revision = doc.Revision

		if !full {
			// Dates are YYYY-MM-DD, so string order is date order.
			if a.StartDate == "" || a.EndDate == "" || today < a.StartDate || today > a.EndDate {
				continue
			}
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

// ─── Settings / parties ───────────────────────────────────────────────────────

// Settings returns the raw general-settings document and its revision.
func (s *Service) Settings(ctx context.Context) (json.RawMessage, string, error) {
	return s.readSingle(ctx, SettingsPath)
}

// SaveSettings replaces the general-settings document.
func (s *Service) SaveSettings(ctx context.Context, raw json.RawMessage, message string) (string, error) {
	if message == "" {
		message = "Update site settings"
	}
	return s.saveSingle(ctx, SettingsPath, raw, message)
}

// PartyInfo returns the raw party-booking document and its revision.
func (s *Service) PartyInfo(ctx context.Context) (json.RawMessage, string, error) {
	return s.readSingle(ctx, PartiesPath)
}

// SavePartyInfo replaces the party-booking document.
func (s *Service) SavePartyInfo(ctx context.Context, raw json.RawMessage, message string) (string, error) {
	if message == "" {
		message = "Update party info"
	}
	return s.saveSingle(ctx, PartiesPath, raw, message)
}

// readSingle fetches one of the singleton documents (settings, parties)
// as raw JSON plus its revision.
func (s *Service) readSingle(ctx context.Context, path string) (json.RawMessage, string, error) {
	doc, err := s.store.Read(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(doc.Content) {
		return nil, "", fmt.Errorf("read %s: document is not valid JSON", path)
	}
	return json.RawMessage(doc.Content), doc.Revision, nil
}

// saveSingle replaces a singleton document. The current revision is
// fetched first, so these writes are last-writer-wins; the document is
// created on first save.
func (s *Service) saveSingle(ctx context.Context, path string, raw json.RawMessage, message string) (string, error) {
	if !json.Valid(raw) {
		return "", fmt.Errorf("save %s: body is not valid JSON", path)
	}

	revision := ""
	if doc, err := s.store.Read(ctx, path); err == nil {
		revision = doc.Revision
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("save %s: %w", path, err)
	}

	var indented any
	if err := json.Unmarshal(raw, &indented); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	pretty, err := json.MarshalIndent(indented, "", "  ")
	if err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	pretty = append(pretty, '\n')

	rev, err := s.store.Write(ctx, path, pretty, revision, message)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return rev, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// Slugify lowercases a title and collapses every non-alphanumeric run
// into a single hyphen.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func eventPath(slug string) string {
	return EventsDir + "/" + slug + ".json"
}

// validateEvent normalizes and validates an inbound event payload,
// including its recurrence rule.
func (s *Service) validateEvent(ev *model.Event) error {
	ev.Normalize()
	if ev.Date == "" {
		return fmt.Errorf("event: date is required")
	}
	// Keep the stored document self-consistent for legacy readers.
	ev.StartDate = ev.Date

	if err := s.validate.Struct(ev); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	if err := recur.ValidateRule(ev.Repeat); err != nil {
		return err
	}
	if ev.Repeat != nil && ev.Repeat.Until != "" && ev.Repeat.Until < ev.Date {
		return &recur.RuleError{Field: "until", Reason: "must not precede the anchor date"}
	}
	return nil
}

// marshalEvent serializes an event document, dropping the transport-only
// slug and revision fields.
func marshalEvent(ev model.Event) ([]byte, error) {
	ev.Slug = ""
	ev.Revision = ""
	body, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return append(body, '\n'), nil
}
