package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	PlanID string          `json:"planId,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

// WSHandler streams plan events over a WebSocket. Clients send
// {"type":"subscribe","id":"s1","planId":"..."} (empty planId means the
// firehose) and receive {"type":"event","id":"s1","event":{...}} frames.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		topic string
		ch    chan Event
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// WriteJSON is not concurrency safe; serialize through one channel.
	out := make(chan any, 16)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case v := <-out:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()
	send := func(v any) {
		select {
		case out <- v:
		default:
		}
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.ID == "" {
				send(wsMessage{Type: "error", Event: []byte(`{"message":"id required"}`)})
				continue
			}
			topic := msg.PlanID
			if topic == "" {
				topic = TopicAll
			}
			ch := s.Broker.Subscribe(topic)
			subs[msg.ID] = sub{topic: topic, ch: ch}
			send(wsMessage{Type: "ack", ID: msg.ID})
			go func(id string, c chan Event) {
				for evt := range c {
					payload, _ := json.Marshal(evt)
					send(wsMessage{Type: "event", ID: id, Event: payload})
				}
				send(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "unsubscribe":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.topic, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	close(done)
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.topic, s0.ch)
		delete(subs, id)
	}
}
