package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"arena-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams tick and valuation events to one client.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	valuations, unsubValuations := s.Bus.Subscribe(events.EventValuation, 100)
	defer unsubValuations()

	type frame struct {
		Topic   string `json:"topic"`
		Payload any    `json:"payload"`
	}
	for {
		select {
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			if err := conn.WriteJSON(frame{Topic: string(events.EventPriceTick), Payload: msg}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case msg, ok := <-valuations:
			if !ok {
				return
			}
			if err := conn.WriteJSON(frame{Topic: string(events.EventValuation), Payload: msg}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
