package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/cmdunn/go-chatrelay/internal/server"
)

func (s *ChatRelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatRelayApp) getRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.RoomList())
}

func (s *ChatRelayApp) getRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, room := range s.cs.RoomList() {
		if room.Id == id {
			s.writeJson(w, http.StatusOK, room)
			return
		}
	}

	errResp := NewNotFoundError()
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatRelayApp) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *ChatRelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	connId, err := shortid.Generate()
	if err != nil {
		s.log.Println("generate connection id:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no origin
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(connId, conn, s.cs, s.log)

	s.cs.RegisterConn(client)
	go client.Write()
	go client.Read()
}
