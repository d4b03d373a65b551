package models

import "time"

// Envelope is the durable wrapper around a captured event. It is built
// exactly once per raw protocol occurrence and never mutated afterwards.
type Envelope struct {
	CapturesID   string    `json:"captures_id"`
	SessionStart string    `json:"session_start"`
	Category     Category  `json:"category"`
	Detail       any       `json:"detail"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewEnvelope builds an envelope for the given session and event detail.
func NewEnvelope(capturesID, sessionStart string, category Category, detail any) *Envelope {
	return &Envelope{
		CapturesID:   capturesID,
		SessionStart: sessionStart,
		Category:     category,
		Detail:       detail,
		Timestamp:    time.Now().UTC(),
	}
}

// Summary is the reduced projection of an event sent to live observers in
// place of the full envelope.
type Summary map[string]any

// Stats holds the per-category accumulator state reported to live clients.
type Stats struct {
	TotalEvents int              `json:"total_events"`
	EventCounts map[Category]int `json:"event_counts"`
}
