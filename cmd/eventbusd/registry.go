package main

import (
	"sort"
	"sync"

	"github.com/platinummonkey/eventbus/pkg/delivery"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// handlerRegistry resolves the handlers subscribed to a topic. Handlers
// reported as impaired are excluded from then on.
type handlerRegistry struct {
	mu       sync.RWMutex
	logger   *observability.Logger
	topics   map[string][]delivery.Handler
	excluded map[string]bool
}

func newHandlerRegistry(logger *observability.Logger) *handlerRegistry {
	return &handlerRegistry{
		logger:   logger,
		topics:   make(map[string][]delivery.Handler),
		excluded: make(map[string]bool),
	}
}

// Subscribe registers h for topic; "*" subscribes to every topic.
func (r *handlerRegistry) Subscribe(topic string, h delivery.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic] = append(r.topics[topic], h)
}

// Resolve returns the handlers for topic that are not excluded.
func (r *handlerRegistry) Resolve(topic string) []delivery.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []delivery.Handler
	for _, key := range []string{topic, "*"} {
		for _, h := range r.topics[key] {
			if !r.excluded[h.Name()] {
				out = append(out, h)
			}
		}
	}
	return out
}

// Exclude is the engine's impairment callback.
func (r *handlerRegistry) Exclude(h delivery.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.excluded[h.Name()] {
		return
	}
	r.excluded[h.Name()] = true
	r.logger.WithField("handler", h.Name()).Warn("Handler excluded from delivery")
}

// handlerInfo describes a subscription
type handlerInfo struct {
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	Excluded bool   `json:"excluded"`
}

// List returns every subscription sorted by topic and name.
func (r *handlerRegistry) List() []handlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []handlerInfo
	for topic, handlers := range r.topics {
		for _, h := range handlers {
			out = append(out, handlerInfo{Name: h.Name(), Topic: topic, Excluded: r.excluded[h.Name()]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Name < out[j].Name
	})
	return out
}
