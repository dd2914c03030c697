package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sse2016-gomoku-fun/fun-portal/middleware"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
)

// EventsHandler streams domain events over SSE. Each connection gets its
// own bus subscription scoped to the stream's lifetime; a dropped client
// cancels the subscription instead of leaving a dangling listener.
type EventsHandler struct {
	Bus *services.EventBus
}

func SetupEventsRoutes(app *fiber.App, h *EventsHandler) {
	app.Get("/events", middleware.UserContext(), h.streamEvents)
}

func (h *EventsHandler) streamEvents(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		events := h.Bus.Subscribe(ctx)

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev.Payload)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}
