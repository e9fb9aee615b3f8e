package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mediaClient is a pion participant speaking the page's signaling protocol.
// With hold set, offers are queued for the test to answer; otherwise they
// are answered as they arrive.
type mediaClient struct {
	conn *websocket.Conn
	pc   *webrtc.PeerConnection
	hold bool

	joined chan Joined
	offers chan webrtc.SessionDescription
	tracks chan *webrtc.TrackRemote
	plis   chan struct{}
	done   chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func newMediaServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newMediaClient(t *testing.T, base, room string, publish, hold bool) *mediaClient {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)

	c := &mediaClient{
		pc:     pc,
		hold:   hold,
		joined: make(chan Joined, 1),
		offers: make(chan webrtc.SessionDescription, 8),
		tracks: make(chan *webrtc.TrackRemote, 8),
		plis:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	t.Cleanup(func() {
		close(c.done)
		pc.Close()
	})

	if publish {
		c.publish(t)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.write(NewMessage(TypeCandidate, cand.ToJSON()))
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		select {
		case c.tracks <- track:
		default:
		}
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})

	c.conn = dial(t, base, room)
	go c.readLoop()
	return c
}

// publish sends a VP8 sample track and reports keyframe requests on plis.
func (c *mediaClient) publish(t *testing.T) {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "camera")
	require.NoError(t, err)
	sender, err := c.pc.AddTrack(track)
	require.NoError(t, err)

	go func() {
		for {
			pkts, _, err := sender.ReadRTCP()
			if err != nil {
				return
			}
			for _, pkt := range pkts {
				if _, ok := pkt.(*rtcp.PictureLossIndication); ok {
					select {
					case c.plis <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		frame := make([]byte, 800)
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				err := track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond})
				if err != nil && !errors.Is(err, io.ErrClosedPipe) {
					return
				}
			}
		}
	}()
}

func (c *mediaClient) write(msg Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteJSON(msg)
}

func (c *mediaClient) readLoop() {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case TypeJoined:
			var j Joined
			if json.Unmarshal(msg.Data, &j) == nil {
				c.joined <- j
			}
		case TypeOffer:
			var offer webrtc.SessionDescription
			if json.Unmarshal(msg.Data, &offer) != nil {
				continue
			}
			if c.hold {
				c.offers <- offer
				continue
			}
			select {
			case c.offers <- offer:
			default:
			}
			_ = c.answer(offer)
		case TypeCandidate:
			var cand webrtc.ICECandidateInit
			if json.Unmarshal(msg.Data, &cand) == nil {
				c.addCandidate(cand)
			}
		}
	}
}

func (c *mediaClient) answer(offer webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			return err
		}
	}
	c.pending = nil

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	c.write(NewMessage(TypeAnswer, answer))
	return nil
}

func (c *mediaClient) addCandidate(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pc.RemoteDescription() == nil {
		c.pending = append(c.pending, cand)
		return
	}
	_ = c.pc.AddICECandidate(cand)
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func drain[T any](ch <-chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// A track published while a subscriber still owes an answer is offered once
// that answer arrives, under the publisher's JID resource, and the publisher
// is asked for a keyframe.
func TestSFUForwardsAfterPendingNegotiation(t *testing.T) {
	srv, base := newMediaServer(t)

	sub := newMediaClient(t, base, "sfu", false, true)
	subJID := recv(t, sub.joined, "subscriber joined").JID
	first := recv(t, sub.offers, "initial offer")

	pub := newMediaClient(t, base, "sfu", true, false)
	pubJID := recv(t, pub.joined, "publisher joined").JID

	require.Eventually(t, func() bool {
		p := srv.Hub().Room("sfu").peerOf(subJID)
		if p == nil {
			return false
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.pending
	}, 10*time.Second, 20*time.Millisecond, "renegotiation for the new track was not deferred")

	select {
	case <-sub.offers:
		t.Fatal("offer sent while the previous one is unanswered")
	default:
	}

	recv(t, pub.plis, "keyframe request for the new subscriber")

	require.NoError(t, sub.answer(first))
	second := recv(t, sub.offers, "offer replayed after the answer")
	assert.Contains(t, second.SDP, "msid:"+Resource(pubJID)+" ")
	require.NoError(t, sub.answer(second))

	track := recv(t, sub.tracks, "forwarded track")
	assert.Equal(t, Resource(pubJID), track.StreamID())
	assert.Equal(t, "video-"+Resource(pubJID), track.ID())

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.metrics.ForwardedPackets) > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(srv.metrics.Negotiations), 3.0)

	// Unmuting asks the publisher for a fresh keyframe.
	drain(pub.plis)
	pub.write(NewMessage(TypePresence, map[string]bool{"videoMuted": true}))
	pub.write(NewMessage(TypePresence, map[string]bool{"videoMuted": false}))
	recv(t, pub.plis, "keyframe request after unmute")
}

// A participant leaving is removed from the others' subscriptions.
func TestSFUDropsTrackOfLeavingPublisher(t *testing.T) {
	srv, base := newMediaServer(t)

	sub := newMediaClient(t, base, "leave", false, false)
	subJID := recv(t, sub.joined, "subscriber joined").JID

	pub := newMediaClient(t, base, "leave", true, false)
	recv(t, pub.joined, "publisher joined")
	recv(t, sub.tracks, "forwarded track")

	room := srv.Hub().Room("leave")
	require.NotNil(t, room)
	p := room.peerOf(subJID)
	require.NotNil(t, p)

	require.NoError(t, pub.conn.Close())
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, sender := range p.pc.GetSenders() {
			if sender.Track() != nil {
				return false
			}
		}
		return room.Len() == 1
	}, 10*time.Second, 20*time.Millisecond, "subscriber still holds the departed publisher's track")
}
