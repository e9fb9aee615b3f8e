package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// client is one websocket connection. Writes go through a single goroutine.
type client struct {
	conn *websocket.Conn
	out  chan Message
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		out:  make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
}

// send queues msg. A client that falls sendBuffer messages behind is dropped.
func (c *client) send(msg Message) {
	select {
	case <-c.done:
	case c.out <- msg:
	default:
		log.Printf("[signal] send buffer full, dropping client")
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// handleWebSocket joins the connecting browser to the room named in the URL
// and relays its signaling until the socket closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "room")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signal] upgrade failed: %v", err)
		return
	}
	c := newClient(conn)
	defer c.close()
	go c.writePump()

	room, jid, roster := s.hub.Join(roomName, c.send)
	defer s.hub.Leave(room, jid)

	c.send(NewMessage(TypeJoined, Joined{
		JID:           jid,
		Room:          roomName,
		Roster:        roster,
		ICEServers:    s.cfg.ICEServers,
		MediaDisabled: s.cfg.DisableMedia,
	}))

	var p *peer
	if !s.cfg.DisableMedia {
		p, err = newPeer(room, jid, c.send, s.cfg.ICEServers, s.metrics)
		if err != nil {
			log.Printf("[sfu] %s peer connection: %v", jid, err)
			c.send(NewMessage(TypeError, map[string]string{"error": "media unavailable"}))
		} else if room.attachPeer(jid, p) {
			room.syncPeers()
		} else {
			p.close()
			p = nil
		}
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[signal] %s read: %v", jid, err)
			}
			return
		}
		if err := s.dispatch(room, jid, p, msg); err != nil {
			log.Printf("[signal] %s %s: %v", jid, msg.Type, err)
		}
	}
}

var errNoMedia = errors.New("no media session")

func (s *Server) dispatch(room *Room, jid string, p *peer, msg Message) error {
	switch msg.Type {
	case TypePresence:
		var presence struct {
			VideoMuted bool `json:"videoMuted"`
		}
		if err := json.Unmarshal(msg.Data, &presence); err != nil {
			return err
		}
		if room.SetVideoMuted(jid, presence.VideoMuted) && !presence.VideoMuted && p != nil {
			// Subscribers need a fresh keyframe once frames flow again.
			p.requestKeyframe()
		}
		return nil

	case TypeAnswer:
		if p == nil {
			return errNoMedia
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Data, &answer); err != nil {
			return err
		}
		return p.handleAnswer(answer)

	case TypeCandidate:
		if p == nil {
			return errNoMedia
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Data, &candidate); err != nil {
			return err
		}
		return p.addCandidate(candidate)
	}
	return errors.New("unknown message type")
}
