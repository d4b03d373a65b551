package models

// Window property change kinds.
const (
	PropertyAdded   = "added"
	PropertyChanged = "changed"
	PropertyDeleted = "deleted"
)

// WindowPropertyChange records one observed difference in a page's JS
// global properties between two snapshots.
type WindowPropertyChange struct {
	Path       string `json:"path"`
	Value      any    `json:"value"`
	ChangeType string `json:"change_type"`
}

// WindowPropertyEvent is emitted once per snapshot that differs from the
// previous one.
type WindowPropertyEvent struct {
	URL       string                 `json:"url"`
	Changes   []WindowPropertyChange `json:"changes"`
	TotalKeys int                    `json:"total_keys"`
	Timestamp int64                  `json:"timestamp"`
}
