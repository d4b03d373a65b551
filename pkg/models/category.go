// Package models defines the event model shared by the capture monitors,
// the broadcaster, and the sinks.
package models

// Category identifies which monitor produced an event. The set is closed:
// each monitor owns exactly one category.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryStorage        Category = "storage"
	CategoryWindowProperty Category = "window_property"
	CategoryInteraction    Category = "interaction"
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryNetwork,
		CategoryStorage,
		CategoryWindowProperty,
		CategoryInteraction,
	}
}

// ParseCategory maps a wire-format name to a Category. The second return
// value is false for names outside the closed set; callers decide whether
// to fall back rather than fail.
func ParseCategory(name string) (Category, bool) {
	switch Category(name) {
	case CategoryNetwork, CategoryStorage, CategoryWindowProperty, CategoryInteraction:
		return Category(name), true
	default:
		return "", false
	}
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }
