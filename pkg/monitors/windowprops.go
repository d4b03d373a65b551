package monitors

import (
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// summaryPathLimit caps how many changed paths appear in a live summary.
const summaryPathLimit = 5

// WindowPropertyMonitor diffs a page's observed JS global properties
// across snapshots. Properties arrive flattened to dot paths; the monitor
// emits one event per snapshot that differs from the previous one.
type WindowPropertyMonitor struct {
	emit EmitFunc
	log  zerolog.Logger

	props map[string]any
}

// NewWindowPropertyMonitor builds a window-property monitor emitting
// through emit.
func NewWindowPropertyMonitor(emit EmitFunc) *WindowPropertyMonitor {
	return &WindowPropertyMonitor{
		emit:  emit,
		log:   logger.WithComponent("windowprops-monitor"),
		props: make(map[string]any),
	}
}

// Category implements Summarizer.
func (*WindowPropertyMonitor) Category() models.Category { return models.CategoryWindowProperty }

// Summarize implements Summarizer: change counts plus the first few
// changed paths for visibility.
func (m *WindowPropertyMonitor) Summarize(detail any) models.Summary {
	ev, ok := detail.(models.WindowPropertyEvent)
	if !ok {
		if p, isPtr := detail.(*models.WindowPropertyEvent); isPtr {
			ev = *p
		} else {
			return models.Summary{"type": string(m.Category())}
		}
	}

	paths := make([]string, 0, summaryPathLimit)
	changeTypes := make(map[string]struct{})

	for i, change := range ev.Changes {
		if i < summaryPathLimit {
			paths = append(paths, change.Path)
		}

		changeTypes[change.ChangeType] = struct{}{}
	}

	types := make([]string, 0, len(changeTypes))
	for t := range changeTypes {
		types = append(types, t)
	}

	return models.Summary{
		"type":          string(m.Category()),
		"url":           ev.URL,
		"change_count":  len(ev.Changes),
		"total_keys":    ev.TotalKeys,
		"changed_paths": paths,
		"change_types":  types,
	}
}

// OnSnapshot diffs a fresh flat property map against the previous one and
// emits a single event when anything changed. The first snapshot reports
// every property as added. The stored snapshot is replaced only after the
// diff is computed.
func (m *WindowPropertyMonitor) OnSnapshot(url string, props map[string]any) {
	var changes []models.WindowPropertyChange

	for path, value := range props {
		prev, ok := m.props[path]
		switch {
		case !ok:
			changes = append(changes, models.WindowPropertyChange{
				Path: path, Value: value, ChangeType: models.PropertyAdded,
			})
		case !reflect.DeepEqual(prev, value):
			changes = append(changes, models.WindowPropertyChange{
				Path: path, Value: value, ChangeType: models.PropertyChanged,
			})
		}
	}

	for path := range m.props {
		if _, ok := props[path]; !ok {
			changes = append(changes, models.WindowPropertyChange{
				Path: path, Value: nil, ChangeType: models.PropertyDeleted,
			})
		}
	}

	snapshot := make(map[string]any, len(props))
	for path, value := range props {
		snapshot[path] = value
	}

	m.props = snapshot

	if len(changes) == 0 {
		return
	}

	m.emit(m.Category(), models.WindowPropertyEvent{
		URL:       url,
		Changes:   changes,
		TotalKeys: len(props),
		Timestamp: time.Now().Unix(),
	})
}

// TrackedKeys reports the size of the current snapshot for diagnostics.
func (m *WindowPropertyMonitor) TrackedKeys() int { return len(m.props) }
