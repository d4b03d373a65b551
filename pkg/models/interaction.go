package models

// BoundingBox is an element's viewport rectangle at interaction time.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// UIElement describes the DOM element a user interacted with.
type UIElement struct {
	TagName     string            `json:"tag_name"`
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	ClassNames  []string          `json:"class_names,omitempty"`
	TypeAttr    string            `json:"type_attr,omitempty"`
	Role        string            `json:"role,omitempty"`
	AriaLabel   string            `json:"aria_label,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Title       string            `json:"title,omitempty"`
	Href        string            `json:"href,omitempty"`
	Src         string            `json:"src,omitempty"`
	Value       string            `json:"value,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CSSPath     string            `json:"css_path,omitempty"`
	XPath       string            `json:"xpath,omitempty"`
	BoundingBox *BoundingBox      `json:"bounding_box,omitempty"`
}

// InteractionInput carries the raw input-device state for one interaction.
type InteractionInput struct {
	MouseButton    *int     `json:"mouse_button,omitempty"`
	KeyValue       string   `json:"key_value,omitempty"`
	KeyCode        string   `json:"key_code,omitempty"`
	CtrlPressed    bool     `json:"ctrl_pressed"`
	ShiftPressed   bool     `json:"shift_pressed"`
	AltPressed     bool     `json:"alt_pressed"`
	MetaPressed    bool     `json:"meta_pressed"`
	MouseXViewport *float64 `json:"mouse_x_viewport,omitempty"`
	MouseYViewport *float64 `json:"mouse_y_viewport,omitempty"`
	MouseXPage     *float64 `json:"mouse_x_page,omitempty"`
	MouseYPage     *float64 `json:"mouse_y_page,omitempty"`
}

// Interaction is one structured user interaction parsed from the injected
// page listener's payload.
type Interaction struct {
	Type      string           `json:"type"`
	URL       string           `json:"url"`
	Input     InteractionInput `json:"interaction"`
	Element   UIElement        `json:"element"`
	Timestamp int64            `json:"timestamp"`
}

// KnownInteractionTypes is the closed set of interaction kinds the injected
// listener reports. Payloads outside this set are dropped at parse time.
var KnownInteractionTypes = map[string]struct{}{
	"click": {}, "dblclick": {}, "mousedown": {}, "mouseup": {},
	"contextmenu": {}, "mouseover": {},
	"keydown": {}, "keyup": {}, "keypress": {},
	"input": {}, "change": {}, "focus": {}, "blur": {},
}
