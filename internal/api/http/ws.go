package http

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	// Browser clients connect from the frontend origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// transcribe upgrades the connection and hands it to the session
// orchestrator, which owns it until disconnect.
func (h *Handler) transcribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	h.sessions.Handle(r.Context(), conn)
}
