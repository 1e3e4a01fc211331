package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isLocalOrigin(origin)
	},
}

// streamJob pushes progress snapshots over a websocket until the job
// finishes or the client goes away.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	updates, unsubscribe, err := s.svc.Jobs.Subscribe(id)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, r, http.StatusNotFound, "job_not_found", "Unknown job")
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("job", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only detect the client closing the socket
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case p, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(p); err != nil {
				log.Debug().Err(err).Str("job", id).Msg("Progress stream write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
