// Package scheduler contains the reschedule batch job: one pass over
// all event documents that advances each past anchor date to its next
// valid occurrence. The package has no timer of its own; runs are
// triggered externally (HTTP, cron in cmd, or -once).
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appLog "scoopcms/internal/log"
	"scoopcms/internal/metrics"
	"scoopcms/internal/model"
	"scoopcms/internal/recur"
	"scoopcms/internal/store"
)

// Notifier is the downstream cache-invalidation signal. Implementations
// must be best-effort; the job ignores their outcome.
type Notifier interface {
	Invalidate(ctx context.Context, paths ...string)
}

// DocumentError records one per-document failure.
type DocumentError struct {
	Slug    string
	Message string
}

func (e DocumentError) String() string {
	return fmt.Sprintf("failed to process %s: %s", e.Slug, e.Message)
}

// Result summarizes one batch run. Partial success is the normal case:
// the job never aborts on a per-document failure.
type Result struct {
	Updated []string
	Errors  []DocumentError
}

// Job is the reschedule batch job. Now is injectable for deterministic
// runs; a nil Now uses the wall clock.
type Job struct {
	Store    store.Store
	Dir      string
	Notifier Notifier
	Now      func() time.Time
}

// Run lists every event document and, for each one independently,
// computes the next occurrence and conditionally rewrites the document
// via a compare-and-swap write. A failure on one document (parse, rule
// configuration, transport, or revision conflict) is recorded and the
// pass continues. When at least one document was updated, a single
// cache-invalidation signal fires for the events listing.
//
// Running twice with the same clock is a no-op on the second pass: the
// exact string equality check between the stored and computed anchor is
// the idempotence guard.
func (j *Job) Run(ctx context.Context) (Result, error) {
	result := Result{Updated: []string{}, Errors: []DocumentError{}}

	metrics.RescheduleRuns.Inc()

	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	today := now().UTC()

	appLog.Info("reschedule run started", "dir", j.Dir, "today", today.Format(recur.DateLayout))

	entries, err := j.Store.List(ctx, j.Dir)
	if err != nil {
		return result, fmt.Errorf("reschedule: list %s: %w", j.Dir, err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name, ".json") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name, ".json")

		updated, err := j.processDocument(ctx, entry, slug, today)
		if err != nil {
			metrics.RescheduleErrors.Inc()
			result.Errors = append(result.Errors, DocumentError{Slug: slug, Message: err.Error()})
			appLog.Error("reschedule: document failed", err, "slug", slug)
			continue
		}
		if updated != "" {
			metrics.RescheduleUpdates.Inc()
			result.Updated = append(result.Updated, updated)
		}
	}

	if len(result.Updated) > 0 && j.Notifier != nil {
		j.Notifier.Invalidate(ctx, "/events")
	}

	appLog.Info("reschedule run finished",
		"updated", len(result.Updated),
		"errors", len(result.Errors),
	)
	return result, nil
}

// processDocument handles one event file: fetch, normalize, compute,
// and conditionally write back. It returns a non-empty summary string
// when the document was rewritten.
//
// The document is round-tripped as a generic map so fields this service
// does not know about survive the rewrite; only date and its legacy
// startDate mirror are touched.
func (j *Job) processDocument(ctx context.Context, entry store.Entry, slug string, today time.Time) (string, error) {
	doc, err := j.Store.Read(ctx, entry.Path)
	if err != nil {
		return "", err
	}

	var raw map[string]any
	if err := json.Unmarshal(doc.Content, &raw); err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}

	var ev model.Event
	if err := json.Unmarshal(doc.Content, &ev); err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	ev.Slug = slug
	ev.Normalize()

	if ev.Date == "" {
		// Not an error: legacy or hand-edited files without a usable
		// anchor are left alone.
		appLog.Warn("event is missing an anchor date, skipping", "slug", slug)
		return "", nil
	}

	next, err := recur.NextOccurrence(ev, today)
	if err != nil {
		return "", err
	}
	if next == "" || next == ev.Date {
		return "", nil
	}

	raw["date"] = next
	raw["startDate"] = next

	body, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize: %w", err)
	}
	body = append(body, '\n')

	message := fmt.Sprintf("Auto-reschedule event %s to %s", slug, next)
	if _, err := j.Store.Write(ctx, entry.Path, body, doc.Revision, message); err != nil {
		return "", err
	}

	appLog.Info("event rescheduled", "slug", slug, "from", ev.Date, "to", next)
	return fmt.Sprintf("%s (from %s -> %s)", slug, ev.Date, next), nil
}
