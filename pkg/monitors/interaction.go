package monitors

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// BindingName is the page-side function the injected listener script calls
// with serialized interaction payloads.
const BindingName = "__tracelightInteractionLog"

// InteractionMonitor parses raw page-interaction payloads into structured
// events and keeps aggregate counts for reporting.
type InteractionMonitor struct {
	emit EmitFunc
	log  zerolog.Logger

	total  int
	byType map[string]int
	byURL  map[string]int
}

// NewInteractionMonitor builds an interaction monitor emitting through
// emit.
func NewInteractionMonitor(emit EmitFunc) *InteractionMonitor {
	return &InteractionMonitor{
		emit:   emit,
		log:    logger.WithComponent("interaction-monitor"),
		byType: make(map[string]int),
		byURL:  make(map[string]int),
	}
}

// Category implements Summarizer.
func (*InteractionMonitor) Category() models.Category { return models.CategoryInteraction }

// Summarize implements Summarizer. The element tag is null when the
// payload carried no element.
func (m *InteractionMonitor) Summarize(detail any) models.Summary {
	ev, ok := detail.(models.Interaction)
	if !ok {
		if p, isPtr := detail.(*models.Interaction); isPtr {
			ev = *p
		} else {
			return models.Summary{"type": string(m.Category())}
		}
	}

	var elementTag any
	if ev.Element.TagName != "" {
		elementTag = ev.Element.TagName
	}

	return models.Summary{
		"type":             string(m.Category()),
		"interaction_type": ev.Type,
		"element_tag":      elementTag,
		"url":              ev.URL,
	}
}

// rawInteraction mirrors the JSON the injected listener produces.
type rawInteraction struct {
	Type      string                  `json:"type"`
	Timestamp int64                   `json:"timestamp"`
	URL       string                  `json:"url"`
	Event     models.InteractionInput `json:"event"`
	Element   *rawElement             `json:"element"`
}

type rawElement struct {
	TagName     string              `json:"tag_name"`
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	ClassNames  []string            `json:"class_names"`
	TypeAttr    string              `json:"type_attr"`
	Role        string              `json:"role"`
	AriaLabel   string              `json:"aria_label"`
	Placeholder string              `json:"placeholder"`
	Title       string              `json:"title"`
	Href        string              `json:"href"`
	Src         string              `json:"src"`
	Value       string              `json:"value"`
	Text        string              `json:"text"`
	Attributes  map[string]string   `json:"attributes"`
	CSSPath     string              `json:"css_path"`
	XPath       string              `json:"xpath"`
	BoundingBox *models.BoundingBox `json:"bounding_box"`
}

// ParseInteraction converts a raw listener payload into a structured
// interaction. Payloads without element data or with an unknown
// interaction type yield nil: the occurrence is dropped, never defaulted.
func ParseInteraction(payload []byte) *models.Interaction {
	var raw rawInteraction
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}

	if raw.Element == nil {
		return nil
	}

	if _, known := models.KnownInteractionTypes[raw.Type]; !known {
		return nil
	}

	return &models.Interaction{
		Type:      raw.Type,
		URL:       raw.URL,
		Timestamp: raw.Timestamp,
		Input:     raw.Event,
		Element: models.UIElement{
			TagName:     raw.Element.TagName,
			ID:          raw.Element.ID,
			Name:        raw.Element.Name,
			ClassNames:  raw.Element.ClassNames,
			TypeAttr:    raw.Element.TypeAttr,
			Role:        raw.Element.Role,
			AriaLabel:   raw.Element.AriaLabel,
			Placeholder: raw.Element.Placeholder,
			Title:       raw.Element.Title,
			Href:        raw.Element.Href,
			Src:         raw.Element.Src,
			Value:       raw.Element.Value,
			Text:        raw.Element.Text,
			Attributes:  raw.Element.Attributes,
			CSSPath:     raw.Element.CSSPath,
			XPath:       raw.Element.XPath,
			BoundingBox: raw.Element.BoundingBox,
		},
	}
}

// OnBindingCalled handles a page binding invocation. Payloads for other
// bindings are not ours; malformed payloads are dropped silently at the
// parse boundary, producing neither counters nor events.
func (m *InteractionMonitor) OnBindingCalled(name string, payload []byte) bool {
	if name != BindingName {
		return false
	}

	ev := ParseInteraction(payload)
	if ev == nil {
		m.log.Debug().Msg("dropping unparseable interaction payload")
		return true
	}

	m.total++
	m.byType[ev.Type]++
	m.byURL[ev.URL]++

	m.emit(m.Category(), *ev)

	return true
}

// StateSummary reports aggregate interaction counts for diagnostics.
func (m *InteractionMonitor) StateSummary() map[string]any {
	byType := make(map[string]int, len(m.byType))
	for k, v := range m.byType {
		byType[k] = v
	}

	byURL := make(map[string]int, len(m.byURL))
	for k, v := range m.byURL {
		byURL[k] = v
	}

	return map[string]any{
		"interactions_logged":  m.total,
		"interactions_by_type": byType,
		"interactions_by_url":  byURL,
	}
}
