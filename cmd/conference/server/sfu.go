package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates a PeerConnection with its own media engine and
// interceptor chain.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	// Create media engine with default codecs
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}

	// Configure RTCP reports (Sender/Receiver reports) - required for WebRTC
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure RTCP reports: %w", err)
	}

	// Configure stats interceptor for RTP stream statistics
	if err := webrtc.ConfigureStatsInterceptor(i); err != nil {
		return nil, fmt.Errorf("configure stats interceptor: %w", err)
	}

	// Register NACK feedback types on MediaEngine for SDP negotiation
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	// NACK generator requests retransmissions on the publisher uplink,
	// the responder serves them on the forwarded tracks.
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK generator: %w", err)
	}
	i.Add(generator)

	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK responder: %w", err)
	}
	i.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return api.NewPeerConnection(config)
}

// peer is the server side of one participant's media session. The server is
// always the offerer; offers are only made in the stable signaling state and
// a request arriving mid-negotiation is replayed after the answer.
type peer struct {
	jid     string
	room    *Room
	pc      *webrtc.PeerConnection
	send    func(Message)
	metrics *Metrics

	mu         sync.Mutex
	negotiated bool
	pending    bool
	candidates []webrtc.ICECandidateInit
	uplink     *webrtc.TrackLocalStaticRTP
	uplinkSSRC webrtc.SSRC
}

func newPeer(room *Room, jid string, send func(Message), iceServers []string, metrics *Metrics) (*peer, error) {
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, err
	}

	p := &peer{
		jid:     jid,
		room:    room,
		pc:      pc,
		send:    send,
		metrics: metrics,
	}

	// Receive the participant's camera
	if _, err := pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add transceiver: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		send(NewMessage(TypeCandidate, c.ToJSON()))
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[sfu] %s publishing: codec=%s, ssrc=%d", jid, track.Codec().MimeType, track.SSRC())
		if err := p.forward(track); err != nil {
			log.Printf("[sfu] %s forward ended: %v", jid, err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[sfu] %s connection state: %s", jid, state.String())
		if state == webrtc.PeerConnectionStateFailed {
			pc.Close()
		}
	})

	return p, nil
}

// forward relays the publisher's packets into a local track that every
// other participant subscribes to. The track's stream id is the JID resource
// so subscribers can tell whose video it is; full JIDs are not valid msids.
func (p *peer) forward(remote *webrtc.TrackRemote) error {
	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, "video-"+Resource(p.jid), Resource(p.jid))
	if err != nil {
		return fmt.Errorf("create local track: %w", err)
	}

	p.mu.Lock()
	p.uplink = local
	p.uplinkSSRC = remote.SSRC()
	p.mu.Unlock()

	p.room.syncPeers()

	var pkt *rtp.Packet
	for {
		pkt, _, err = remote.ReadRTP()
		if err != nil {
			return err
		}
		if err := local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return err
		}
		p.metrics.ForwardedPackets.Inc()
	}
}

func (p *peer) track() *webrtc.TrackLocalStaticRTP {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uplink
}

// sync makes the senders match tracks (keyed by publisher JID, own track
// excluded) and renegotiates when anything changed.
func (p *peer) sync(tracks map[string]*webrtc.TrackLocalStaticRTP) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return nil
	}

	want := make(map[string]bool, len(tracks))
	for publisher := range tracks {
		want[Resource(publisher)] = true
	}

	changed := !p.negotiated
	present := make(map[string]bool)
	for _, sender := range p.pc.GetSenders() {
		t := sender.Track()
		if t == nil {
			continue
		}
		present[t.StreamID()] = true
		if !want[t.StreamID()] {
			if err := p.pc.RemoveTrack(sender); err != nil {
				return fmt.Errorf("remove %s: %w", t.StreamID(), err)
			}
			changed = true
		}
	}

	var added []string
	for publisher, t := range tracks {
		if publisher == p.jid || present[Resource(publisher)] {
			continue
		}
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add %s: %w", publisher, err)
		}
		go p.readRTCP(sender, publisher)
		added = append(added, publisher)
		changed = true
	}

	if changed {
		if err := p.negotiateLocked(); err != nil {
			return err
		}
	}

	// New subscribers need a keyframe to start decoding.
	for _, publisher := range added {
		go p.room.requestKeyframe(publisher)
	}
	return nil
}

// readRTCP watches a subscriber's feedback and relays keyframe requests to
// the publisher.
func (p *peer) readRTCP(sender *webrtc.RTPSender, publisher string) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				p.room.requestKeyframe(publisher)
			}
		}
	}
}

func (p *peer) negotiateLocked() error {
	if p.pc.SignalingState() != webrtc.SignalingStateStable {
		p.pending = true
		return nil
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	p.negotiated = true
	p.pending = false
	p.send(NewMessage(TypeOffer, offer))
	p.metrics.Negotiations.Inc()
	return nil
}

func (p *peer) handleAnswer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	for _, c := range p.candidates {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Printf("[sfu] %s buffered candidate: %v", p.jid, err)
		}
	}
	p.candidates = nil

	if p.pending {
		return p.negotiateLocked()
	}
	return nil
}

func (p *peer) addCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pc.RemoteDescription() == nil {
		p.candidates = append(p.candidates, c)
		return nil
	}
	return p.pc.AddICECandidate(c)
}

func (p *peer) requestKeyframe() {
	p.mu.Lock()
	ssrc := p.uplinkSSRC
	p.mu.Unlock()
	if ssrc == 0 {
		return
	}
	if err := p.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}); err != nil {
		log.Printf("[sfu] %s PLI: %v", p.jid, err)
	}
}

func (p *peer) close() {
	if err := p.pc.Close(); err != nil {
		log.Printf("[sfu] %s close: %v", p.jid, err)
	}
}

// attachPeer binds media to jid. It returns false when jid already left.
func (r *Room) attachPeer(jid string, p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[jid]
	if !ok {
		return false
	}
	m.peer = p
	return true
}

func (r *Room) peerOf(jid string) *peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[jid]; ok {
		return m.peer
	}
	return nil
}

// syncPeers brings every participant's subscriptions up to date with the
// published tracks.
func (r *Room) syncPeers() {
	r.mu.Lock()
	tracks := make(map[string]*webrtc.TrackLocalStaticRTP)
	peers := make([]*peer, 0, len(r.members))
	for jid, m := range r.members {
		if m.peer == nil {
			continue
		}
		peers = append(peers, m.peer)
		if t := m.peer.track(); t != nil {
			tracks[jid] = t
		}
	}
	r.mu.Unlock()

	for _, p := range peers {
		if err := p.sync(tracks); err != nil {
			log.Printf("[sfu] %s sync: %v", p.jid, err)
		}
	}
}

func (r *Room) requestKeyframe(jid string) {
	if p := r.peerOf(jid); p != nil {
		p.requestKeyframe()
	}
}
