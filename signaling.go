package main

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventsHandler upgrades the request and hands the socket to the conductor,
// which streams actuation events until either side goes away.
func EventsHandler(w http.ResponseWriter, r *http.Request) {
	if ENV.Conductor == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ENV.Conductor.Serve(conn)
}
