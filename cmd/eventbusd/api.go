package main

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/eventbus/pkg/delivery"
	"github.com/platinummonkey/eventbus/pkg/engine"
	"github.com/platinummonkey/eventbus/pkg/httputil"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// api exposes the engine over HTTP
type api struct {
	eng      *engine.Engine
	registry *handlerRegistry
	logger   *observability.Logger
}

func newAPI(eng *engine.Engine, registry *handlerRegistry, logger *observability.Logger) *api {
	return &api{eng: eng, registry: registry, logger: logger}
}

// RegisterRoutes registers the API routes
func (a *api) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stats", a.stats).Methods(http.MethodGet)
	router.HandleFunc("/handlers", a.handlers).Methods(http.MethodGet)
	router.HandleFunc("/events/{topic}", a.publish).Methods(http.MethodPost)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, a.eng.Stats())
}

func (a *api) handlers(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, a.registry.List())
}

type publishResponse struct {
	ID       string `json:"id"`
	Topic    string `json:"topic"`
	Mode     string `json:"mode"`
	Handlers int    `json:"handlers"`
}

// publish delivers the JSON body as event properties. ?mode=async returns
// before delivery; the default waits for it.
func (a *api) publish(w http.ResponseWriter, r *http.Request) {
	topic, err := httputil.ParsePathString(r, "topic")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	mode, err := httputil.ParseQueryEnum(r, "mode", delivery.ModeSync, delivery.ModeSync, delivery.ModeAsync)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var props map[string]interface{}
	if err := httputil.ParseOptionalJSON(r, &props); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	event := newEvent(topic, props)
	ctx := observability.WithEventID(r.Context(), event.ID)
	handlers := a.registry.Resolve(topic)

	status := http.StatusOK
	if mode == delivery.ModeAsync {
		status = http.StatusAccepted
		err = a.eng.Post(ctx, event, handlers...)
	} else {
		err = a.eng.Send(ctx, event, handlers...)
	}

	switch {
	case errors.Is(err, engine.ErrEngineClosed):
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	case err != nil:
		a.logger.WithError(err).WithField("event_id", event.ID).Warn("Publish failed")
		httputil.WriteError(w, http.StatusGatewayTimeout, err)
		return
	}

	_ = httputil.WriteJSON(w, status, publishResponse{ID: event.ID, Topic: topic, Mode: mode, Handlers: len(handlers)})
}
