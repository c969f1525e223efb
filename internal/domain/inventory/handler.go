package inventory

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fixpoint/fixpoint-api/internal/middleware"
	"github.com/fixpoint/fixpoint-api/internal/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

type Handler struct {
	snapshot *Snapshot
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(snapshot *Snapshot, hub *Hub, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		snapshot: snapshot,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
	}
}

// List refreshes the snapshot and returns the selectable items matching the
// optional category and search filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.snapshot.Refresh(r.Context()); err != nil {
		switch {
		case errors.Is(err, ErrAuthRequired):
			response.Unauthorized(w, "sign in to view materials")
		case errors.Is(err, ErrFetchFailed):
			response.ServiceUnavailable(w, "could not load materials, please retry")
		default:
			response.InternalError(w)
		}
		return
	}

	items := h.snapshot.Filter(FilterOptions{
		Category:   r.URL.Query().Get("category"),
		SearchTerm: r.URL.Query().Get("q"),
	})

	type itemView struct {
		Item
		LowStock bool `json:"low_stock"`
	}
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, itemView{Item: item, LowStock: item.LowStock()})
	}

	response.OK(w, map[string]interface{}{
		"items":        views,
		"refreshed_at": h.snapshot.RefreshedAt(),
	})
}

// Watch upgrades to a WebSocket pushing stock changes while the booking form
// is open.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("stock watch upgrade failed")
		return
	}

	conn := &Connection{
		UserID: userID,
		Conn:   ws,
		Send:   make(chan []byte, 16),
	}
	h.hub.Register(conn)

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Handler) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; the watch channel is push-only.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	return r
}
