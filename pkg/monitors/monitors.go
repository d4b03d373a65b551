// Package monitors turns raw remote-debugging protocol traffic into typed
// capture events. Each monitor owns one event category, keeps whatever
// diff state that category needs, and hands finished events to the
// broadcaster through an EmitFunc supplied at construction.
package monitors

import (
	"github.com/tracelight/tracelight/pkg/models"
)

// EmitFunc receives every event a monitor produces. Implementations must
// not panic back into the monitor; all downstream failures are the
// receiver's to log and contain.
type EmitFunc func(category models.Category, detail any)

// Summarizer is the capability every monitor implements: naming its
// category and producing a lightweight projection of a full event for the
// live stream.
type Summarizer interface {
	Category() models.Category
	Summarize(detail any) models.Summary
}

// Registry resolves a category to the monitor that can summarize its
// events. Registration is explicit at construction; there is no dynamic
// discovery.
type Registry struct {
	summarizers map[models.Category]Summarizer
}

// NewRegistry builds a registry over the given summarizers. Later entries
// with a duplicate category win, matching map semantics.
func NewRegistry(summarizers ...Summarizer) *Registry {
	reg := &Registry{summarizers: make(map[models.Category]Summarizer, len(summarizers))}
	for _, s := range summarizers {
		reg.summarizers[s.Category()] = s
	}

	return reg
}

// Summarize resolves the category and delegates to its monitor. Categories
// outside the registered set yield a minimal fallback record; the pipeline
// never drops an event just because a summarizer is missing.
func (r *Registry) Summarize(category models.Category, detail any) models.Summary {
	if s, ok := r.summarizers[category]; ok {
		return s.Summarize(detail)
	}

	return models.Summary{"type": "unknown"}
}
