package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/sunnyswag/RTCStartupDemo/internal/rendezvous"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Room peers are CLI clients; there is no browser origin to check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewRouter returns the HTTP handler of the rendezvous server.
func NewRouter(hub *rendezvous.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthCheck)
	r.Get("/rooms", listRooms(hub))
	r.Get("/ws", ServeWs(hub))

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Rendezvous server is healthy."))
}

func listRooms(hub *rendezvous.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Rooms()); err != nil {
			slog.Warn("failed to write room list", "error", err)
		}
	}
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
func ServeWs(hub *rendezvous.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()), "error", err)
			return
		}

		client := rendezvous.NewClient(hub, conn)
		if !hub.Add(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
