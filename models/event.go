// api/models/event.go
package models

import "time"

// RawEvent is one user's attempt through the funnel, as returned by the
// external form platform. Events are append-only history: they are never
// mutated after being fetched.
type RawEvent struct {
	EntryToken string      `json:"entry_token"`
	FormID     string      `json:"form_id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	PageVisits []PageVisit `json:"page_visits"`
}

// PageVisit is a single page view inside an entry. The slice index within
// RawEvent.PageVisits (not the Position field) determines visit order for
// last-occurrence deduplication; Position is the platform's own counter and
// is kept for diagnostics only.
type PageVisit struct {
	VisitedAt time.Time `json:"visited_at"`
	StepKey   string    `json:"step_key"`
	Position  int       `json:"position"`
	URL       string    `json:"url,omitempty"`
}

// Entry is the lightweight record upserted by the webhook receiver. Webhook
// pushes never touch the daily aggregates; the periodic sync job stays the
// single authority for aggregate rows so the two paths cannot double count.
type Entry struct {
	ID         int       `json:"id"`
	EntryToken string    `json:"entry_token"`
	FormID     string    `json:"form_id"`
	Completed  bool      `json:"completed"`
	RawPayload []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
