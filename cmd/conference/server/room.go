package server

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MUCDomain is the host part of every participant JID.
const MUCDomain = "conference.meet.local"

// Message is the signaling envelope exchanged over the websocket.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message types.
const (
	TypeJoined            = "joined"
	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypePresence          = "presence"
	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeCandidate         = "candidate"
	TypeError             = "error"
)

// NewMessage encodes data into a Message of the given type.
func NewMessage(typ string, data any) Message {
	raw, err := json.Marshal(data)
	if err != nil {
		// Every payload is a plain struct; this only fires on programmer error.
		log.Printf("[signal] encode %s: %v", typ, err)
		raw = nil
	}
	return Message{Type: typ, Data: raw}
}

// Presence is a participant's advertised state.
type Presence struct {
	JID        string `json:"jid"`
	VideoMuted bool   `json:"videoMuted"`
}

// Joined is sent to a participant once it is in the room. MediaDisabled
// tells the page not to open a PeerConnection; it then reports its ICE
// state as connected so presence-only rooms still count as established.
type Joined struct {
	JID           string     `json:"jid"`
	Room          string     `json:"room"`
	Roster        []Presence `json:"roster"`
	ICEServers    []string   `json:"iceServers,omitempty"`
	MediaDisabled bool       `json:"mediaDisabled,omitempty"`
}

// Left announces a departed participant.
type Left struct {
	JID string `json:"jid"`
}

// NewJID returns a fresh JID in room.
func NewJID(room string) string {
	resource := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s@%s/%s", room, MUCDomain, resource)
}

// Resource returns the part of jid after the slash.
func Resource(jid string) string {
	if i := strings.LastIndexByte(jid, '/'); i >= 0 {
		return jid[i+1:]
	}
	return jid
}

type member struct {
	jid        string
	videoMuted bool
	joinSeq    uint64
	send       func(Message)
	peer       *peer
}

// Room is a multi-user chat room. All methods are safe for concurrent use.
type Room struct {
	name    string
	metrics *Metrics

	mu      sync.Mutex
	members map[string]*member
	seq     uint64
}

func newRoom(name string, metrics *Metrics) *Room {
	return &Room{
		name:    name,
		metrics: metrics,
		members: make(map[string]*member),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// join adds a participant and announces it to everyone else. It returns the
// roster of the participants already present, in join order.
func (r *Room) join(jid string, send func(Message)) []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster := r.rosterLocked("")
	r.seq++
	r.members[jid] = &member{jid: jid, send: send, joinSeq: r.seq}
	r.broadcastLocked(jid, NewMessage(TypeParticipantJoined, Presence{JID: jid}))
	r.metrics.Participants.Inc()
	log.Printf("[room] %s joined %s (%d present)", jid, r.name, len(r.members))
	return roster
}

// leave removes jid and returns its peer (if any) and whether the room is now empty.
func (r *Room) leave(jid string) (*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[jid]
	if !ok {
		return nil, len(r.members) == 0
	}
	delete(r.members, jid)
	r.broadcastLocked(jid, NewMessage(TypeParticipantLeft, Left{JID: jid}))
	r.metrics.Participants.Dec()
	log.Printf("[room] %s left %s (%d present)", jid, r.name, len(r.members))
	return m.peer, len(r.members) == 0
}

// SetVideoMuted records jid's video state and tells the other participants.
// It reports whether the state changed.
func (r *Room) SetVideoMuted(jid string, muted bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[jid]
	if !ok || m.videoMuted == muted {
		return false
	}
	m.videoMuted = muted
	r.broadcastLocked(jid, NewMessage(TypePresence, Presence{JID: jid, VideoMuted: muted}))
	r.metrics.PresenceUpdates.WithLabelValues(videoLabel(muted)).Inc()
	return true
}

// Roster returns every participant's presence in join order.
func (r *Room) Roster() []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked("")
}

// Len returns the number of participants.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) rosterLocked(except string) []Presence {
	ordered := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		if m.jid != except {
			ordered = append(ordered, m)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })

	roster := make([]Presence, 0, len(ordered))
	for _, m := range ordered {
		roster = append(roster, Presence{JID: m.jid, VideoMuted: m.videoMuted})
	}
	return roster
}

func (r *Room) broadcastLocked(from string, msg Message) {
	for jid, m := range r.members {
		if jid != from {
			m.send(msg)
		}
	}
}

func videoLabel(muted bool) string {
	if muted {
		return "muted"
	}
	return "unmuted"
}

// Hub owns every room. Rooms are created on first join and dropped when the
// last participant leaves.
type Hub struct {
	metrics *Metrics

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewHub returns an empty hub reporting to metrics.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		rooms:   make(map[string]*Room),
	}
}

// Join adds a new participant to the named room. It returns the room, the
// participant's JID and the roster it must be told about.
func (h *Hub) Join(name string, send func(Message)) (*Room, string, []Presence) {
	h.mu.Lock()
	room, ok := h.rooms[name]
	if !ok {
		room = newRoom(name, h.metrics)
		h.rooms[name] = room
		h.metrics.Rooms.Inc()
	}
	// Joining under the hub lock keeps a concurrent Leave from dropping the
	// room between lookup and join.
	jid := NewJID(name)
	roster := room.join(jid, send)
	h.mu.Unlock()
	return room, jid, roster
}

// Leave removes jid from room, closes its media and drops the room when empty.
func (h *Hub) Leave(room *Room, jid string) {
	h.mu.Lock()
	p, empty := room.leave(jid)
	if empty && h.rooms[room.name] == room {
		delete(h.rooms, room.name)
		h.metrics.Rooms.Dec()
	}
	h.mu.Unlock()

	if p != nil {
		p.close()
		room.syncPeers()
	}
}

// Room returns the named room, or nil.
func (h *Hub) Room(name string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[name]
}

// Len returns the number of live rooms.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
