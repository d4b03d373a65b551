package monitors

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// cookiePollDebounce bounds how often cookie-list polls may be triggered
// by push notifications.
const cookiePollDebounce = 500 * time.Millisecond

// cookieKey identifies a cookie in the snapshot. The path attribute is
// deliberately not part of the key: two cookies sharing domain+name but
// differing in path collapse to one entry and overwrite each other. This
// matches the recorded browser sessions this pipeline was built against;
// fixing it would change diff output for existing captures.
type cookieKey struct {
	domain string
	name   string
}

// StorageMonitor tracks cookies and per-origin DOM storage, converting
// push notifications and periodic full polls into diff events. It is
// single-owner state: callers must not invoke handlers concurrently.
type StorageMonitor struct {
	emit EmitFunc
	log  zerolog.Logger

	cookies        map[cookieKey]models.Cookie
	localStorage   map[string]map[string]string
	sessionStorage map[string]map[string]string

	lastPollTrigger time.Time
}

// NewStorageMonitor builds a storage monitor emitting through emit.
func NewStorageMonitor(emit EmitFunc) *StorageMonitor {
	return &StorageMonitor{
		emit:           emit,
		log:            logger.WithComponent("storage-monitor"),
		cookies:        make(map[cookieKey]models.Cookie),
		localStorage:   make(map[string]map[string]string),
		sessionStorage: make(map[string]map[string]string),
	}
}

// Category implements Summarizer.
func (*StorageMonitor) Category() models.Category { return models.CategoryStorage }

// Summarize implements Summarizer: counts for cookie events, origin/key
// for item-level events.
func (m *StorageMonitor) Summarize(detail any) models.Summary {
	ev, ok := detail.(models.StorageEvent)
	if !ok {
		if p, isPtr := detail.(*models.StorageEvent); isPtr {
			ev = *p
		} else {
			return models.Summary{"type": string(m.Category())}
		}
	}

	summary := models.Summary{
		"type":       string(m.Category()),
		"event_type": ev.Type,
	}

	switch {
	case strings.Contains(strings.ToLower(ev.Type), "cookie"):
		count := ev.TotalCount
		if count == 0 {
			count = ev.Count
		}

		summary["cookie_count"] = count

		if ev.Type == models.StorageCookieChange {
			summary["added_count"] = len(ev.Added)
			summary["modified_count"] = len(ev.Modified)
			summary["removed_count"] = len(ev.Removed)
		}
	case strings.Contains(strings.ToLower(ev.Type), "storage"):
		summary["origin"] = ev.Origin
		summary["key"] = ev.Key
	}

	return summary
}

func storageKind(local bool) string {
	if local {
		return "localStorage"
	}

	return "sessionStorage"
}

func (m *StorageMonitor) originMap(origin string, local bool) map[string]string {
	store := m.sessionStorage
	if local {
		store = m.localStorage
	}

	items, ok := store[origin]
	if !ok {
		items = make(map[string]string)
		store[origin] = items
	}

	return items
}

// OnItemAdded upserts a storage key and emits one event.
func (m *StorageMonitor) OnItemAdded(origin, key, value string, local bool) {
	m.originMap(origin, local)[key] = value

	m.emit(m.Category(), models.StorageEvent{
		Type:      storageKind(local) + "ItemAdded",
		Origin:    origin,
		Key:       key,
		Value:     value,
		Timestamp: time.Now().Unix(),
	})
}

// OnItemUpdated replaces a storage value and emits one event carrying both
// the old and new value.
func (m *StorageMonitor) OnItemUpdated(origin, key, oldValue, newValue string, local bool) {
	m.originMap(origin, local)[key] = newValue

	m.emit(m.Category(), models.StorageEvent{
		Type:      storageKind(local) + "ItemUpdated",
		Origin:    origin,
		Key:       key,
		OldValue:  oldValue,
		Value:     newValue,
		Timestamp: time.Now().Unix(),
	})
}

// OnItemRemoved deletes a storage key and emits one event. A missing key
// is a no-op on the snapshot, not an error; the event is still emitted so
// the sinks see what the page reported.
func (m *StorageMonitor) OnItemRemoved(origin, key string, local bool) {
	store := m.sessionStorage
	if local {
		store = m.localStorage
	}

	if items, ok := store[origin]; ok {
		delete(items, key)
	}

	m.emit(m.Category(), models.StorageEvent{
		Type:      storageKind(local) + "ItemRemoved",
		Origin:    origin,
		Key:       key,
		Timestamp: time.Now().Unix(),
	})
}

// OnCleared drops an origin's entire map and emits one event naming the
// origin.
func (m *StorageMonitor) OnCleared(origin string, local bool) {
	if local {
		delete(m.localStorage, origin)
	} else {
		delete(m.sessionStorage, origin)
	}

	m.emit(m.Category(), models.StorageEvent{
		Type:      storageKind(local) + "Cleared",
		Origin:    origin,
		Timestamp: time.Now().Unix(),
	})
}

// PollDue reports whether enough time has passed since the last triggered
// poll; push handlers use it to debounce full cookie reads.
func (m *StorageMonitor) PollDue(now time.Time) bool {
	if now.Sub(m.lastPollTrigger) > cookiePollDebounce {
		m.lastPollTrigger = now
		return true
	}

	return false
}

// OnCookiePoll ingests a full cookie-list read. The first poll replaces
// the snapshot wholesale and reports only a count; later polls diff
// against the pre-update snapshot before replacing it. Exactly one event
// is emitted either way.
func (m *StorageMonitor) OnCookiePoll(cookies []models.Cookie, initial bool, triggeredBy string) {
	current := make(map[cookieKey]models.Cookie, len(cookies))
	for _, c := range cookies {
		current[cookieKey{domain: c.Domain, name: c.Name}] = c
	}

	if initial {
		m.cookies = current

		m.emit(m.Category(), models.StorageEvent{
			Type:      models.StorageInitialCookies,
			Source:    "native_cdp",
			Count:     len(current),
			Timestamp: time.Now().Unix(),
		})

		m.log.Info().Int("count", len(current)).Msg("initial cookie snapshot recorded")

		return
	}

	var (
		added    []models.Cookie
		modified []models.CookieModification
		removed  []models.Cookie
	)

	for key, cookie := range current {
		prev, ok := m.cookies[key]
		switch {
		case !ok:
			added = append(added, cookie)
		case prev != cookie:
			modified = append(modified, models.CookieModification{Old: prev, New: cookie})
		}
	}

	for key, cookie := range m.cookies {
		if _, ok := current[key]; !ok {
			removed = append(removed, cookie)
		}
	}

	m.cookies = current

	m.emit(m.Category(), models.StorageEvent{
		Type:        models.StorageCookieChange,
		Source:      "native_cdp",
		TriggeredBy: triggeredBy,
		Added:       added,
		Modified:    modified,
		Removed:     removed,
		TotalCount:  len(current),
		Timestamp:   time.Now().Unix(),
	})
}

// StateSummary reports current snapshot sizes for diagnostics.
func (m *StorageMonitor) StateSummary() map[string]any {
	localItems := 0
	for _, items := range m.localStorage {
		localItems += len(items)
	}

	sessionItems := 0
	for _, items := range m.sessionStorage {
		sessionItems += len(items)
	}

	return map[string]any{
		"cookies_count":         len(m.cookies),
		"local_storage_items":   localItems,
		"session_storage_items": sessionItems,
	}
}
