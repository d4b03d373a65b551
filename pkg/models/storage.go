package models

// Storage event types emitted by the storage monitor. Cookie events come
// from full-snapshot polls, the rest from push notifications.
const (
	StorageInitialCookies = "initialCookies"
	StorageCookieChange   = "cookieChange"
)

// StorageEvent is the detail payload for all storage mutations. Fields are
// populated per event type; absent fields marshal as omitted.
type StorageEvent struct {
	Type        string               `json:"type"`
	Source      string               `json:"source,omitempty"`
	Origin      string               `json:"origin,omitempty"`
	Key         string               `json:"key,omitempty"`
	Value       string               `json:"value,omitempty"`
	OldValue    string               `json:"old_value,omitempty"`
	TriggeredBy string               `json:"triggered_by,omitempty"`
	Count       int                  `json:"count,omitempty"`
	TotalCount  int                  `json:"total_count,omitempty"`
	Added       []Cookie             `json:"added,omitempty"`
	Modified    []CookieModification `json:"modified,omitempty"`
	Removed     []Cookie             `json:"removed,omitempty"`
	Timestamp   int64                `json:"timestamp"`
}
