package livestream

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tracelight/tracelight/pkg/broadcaster"
	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// Handler upgrades HTTP requests to websocket live-stream connections and
// registers them with the session broadcaster.
type Handler struct {
	hub      *broadcaster.Broadcaster
	upgrader websocket.Upgrader
}

// NewHandler builds a websocket handler bound to one session broadcaster.
func NewHandler(hub *broadcaster.Broadcaster) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Observers are local tooling, not browsers on foreign origins.
				return true
			},
		},
	}
}

// ServeHTTP upgrades the connection, registers the client with the filter
// from the categories query parameter, and runs the control read loop until
// the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("livestream")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	client := NewClientConn(conn)
	categories := parseCategoryFilter(r.URL.Query().Get("categories"))

	log.Info().
		Str("remote_addr", r.RemoteAddr).
		Int("filter_size", len(categories)).
		Msg("WebSocket connection established")

	h.hub.Register(client, categories)
	h.readLoop(conn, client)
}

// readLoop consumes client control messages. Subscribe requests replace the
// client's category filter; anything else is ignored. The loop ends on any
// read error, which covers both clean close frames and dropped connections.
func (h *Handler) readLoop(conn *websocket.Conn, client *ClientConn) {
	log := logger.WithComponent("livestream")
	remoteAddr := conn.RemoteAddr().String()

	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().
					Err(err).
					Str("remote_addr", remoteAddr).
					Msg("WebSocket read error")
			}

			return
		}

		var req models.SubscribeRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Debug().
				Err(err).
				Str("remote_addr", remoteAddr).
				Msg("Ignoring malformed control message")

			continue
		}

		if req.Action != "subscribe" {
			continue
		}

		h.hub.UpdateSubscriptions(client, categorySet(req.Categories))

		log.Debug().
			Str("remote_addr", remoteAddr).
			Strs("categories", req.Categories).
			Msg("Subscription filter updated")
	}
}

// parseCategoryFilter builds a filter from a comma-separated query value.
// An empty value means all categories; unknown names are dropped.
func parseCategoryFilter(raw string) map[models.Category]struct{} {
	if raw == "" {
		return nil
	}

	return categorySet(strings.Split(raw, ","))
}

func categorySet(names []string) map[models.Category]struct{} {
	set := make(map[models.Category]struct{}, len(names))

	for _, name := range names {
		category, ok := models.ParseCategory(strings.TrimSpace(name))
		if !ok {
			continue
		}

		set[category] = struct{}{}
	}

	return set
}
