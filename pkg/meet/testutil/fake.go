package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ysmood/gson"
)

// FakeConference simulates the conference page's DOM and script contract for
// every session launched from it. Sessions see each other once both have
// navigated to the same room URL, and a muted participant shows the
// video-muted indicator to every other open session as well as locally.
type FakeConference struct {
	mu       sync.Mutex
	sessions []*FakeSession
	nextID   int

	// JoinPolls is how many IsMUCJoinedScript evaluations report false
	// before a session counts as joined.
	JoinPolls int

	// ICEPolls is how many ICEStateScript evaluations report "checking"
	// before "connected".
	ICEPolls int

	// ICEFailed makes every ICE state query report "failed".
	ICEFailed bool

	// LaunchErr is returned by Launch when set.
	LaunchErr error
}

// NewFakeConference returns an empty conference.
func NewFakeConference() *FakeConference {
	return &FakeConference{}
}

// FakeSession is a Driver and MediaDebugger backed by a FakeConference.
type FakeSession struct {
	conf *FakeConference
	name string
	jid  string

	url       string
	navigated bool
	closed    bool
	muted     bool
	joinPolls int
	icePolls  int

	// IgnoreClicks drops camera clicks so indicators never change.
	IgnoreClicks bool

	clicks []string
}

var (
	_ Driver        = (*FakeSession)(nil)
	_ MediaDebugger = (*FakeSession)(nil)
)

// Launch creates a new session. Its signature matches the fixture launcher.
func (c *FakeConference) Launch(ctx context.Context, name string) (Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LaunchErr != nil {
		return nil, c.LaunchErr
	}
	c.nextID++
	s := &FakeSession{
		conf:      c,
		name:      name,
		jid:       fmt.Sprintf("room@conference.meet.local/%s%d", name, c.nextID),
		joinPolls: c.JoinPolls,
		icePolls:  c.ICEPolls,
	}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// Sessions returns every session ever launched, in launch order.
func (c *FakeConference) Sessions() []*FakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeSession(nil), c.sessions...)
}

// Session returns the most recently launched session named name.
func (c *FakeConference) Session(name string) *FakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sessions) - 1; i >= 0; i-- {
		if c.sessions[i].name == name {
			return c.sessions[i]
		}
	}
	return nil
}

// Name returns the name the session was launched with.
func (s *FakeSession) Name() string { return s.name }

// JID returns the session's room JID.
func (s *FakeSession) JID() string { return s.jid }

// URL returns the last navigated URL.
func (s *FakeSession) URL() string {
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	return s.url
}

// Muted reports whether the session's camera is off.
func (s *FakeSession) Muted() bool {
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	return s.muted
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	return s.closed
}

// Clicks returns the ids clicked so far.
func (s *FakeSession) Clicks() []string {
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

// SetIgnoreClicks toggles IgnoreClicks under the conference lock.
func (s *FakeSession) SetIgnoreClicks(v bool) {
	s.conf.mu.Lock()
	s.IgnoreClicks = v
	s.conf.mu.Unlock()
}

func (s *FakeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.url = url
	s.navigated = true
	return nil
}

func (s *FakeSession) ready() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.navigated {
		return ErrNoPage
	}
	return nil
}

// visibleLocked reports whether s currently renders other as a remote
// participant. Only sessions on the same room URL see each other.
func (s *FakeSession) visibleLocked(other *FakeSession) bool {
	return other != s && !other.closed && other.navigated && other.url == s.url
}

func (s *FakeSession) HasXPath(ctx context.Context, xpath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	if err := s.ready(); err != nil {
		return false, err
	}

	remoteMuted := false
	for _, other := range s.conf.sessions {
		if s.visibleLocked(other) && other.muted {
			remoteMuted = true
			break
		}
	}

	switch xpath {
	case VideoMutedXPath:
		return remoteMuted || s.muted, nil
	case RemoteVideoMutedXPath:
		return remoteMuted, nil
	default:
		return false, fmt.Errorf("fake conference: unsupported locator %q", xpath)
	}
}

func (s *FakeSession) ClickByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if id != CameraButtonID {
		return fmt.Errorf("element #%s: not found", id)
	}
	s.clicks = append(s.clicks, id)
	if !s.IgnoreClicks {
		s.muted = !s.muted
	}
	return nil
}

func (s *FakeSession) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.New(nil), err
	}
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	if err := s.ready(); err != nil {
		return gson.New(nil), err
	}

	switch js {
	case IsMUCJoinedScript:
		if s.joinPolls > 0 {
			s.joinPolls--
			return gson.New(false), nil
		}
		return gson.New(true), nil
	case ICEStateScript:
		if s.conf.ICEFailed {
			return gson.New("failed"), nil
		}
		if s.icePolls > 0 {
			s.icePolls--
			return gson.New("checking"), nil
		}
		return gson.New("connected"), nil
	case LocalJIDScript:
		return gson.New(s.jid), nil
	case RemoteVideoScript:
		if len(args) != 1 {
			return gson.New(nil), errors.New("fake conference: remote video script takes one jid")
		}
		jid, _ := args[0].(string)
		state := s.remoteVideoLocked(jid)
		return gson.New(map[string]any{
			"streamExists": state.StreamExists,
			"videoExists":  state.VideoExists,
			"muted":        state.Muted,
		}), nil
	}
	return gson.New(nil), fmt.Errorf("fake conference: unsupported script %q", js)
}

func (s *FakeSession) remoteVideoLocked(jid string) RemoteVideoState {
	for _, other := range s.conf.sessions {
		if other.jid == jid && s.visibleLocked(other) {
			return RemoteVideoState{StreamExists: true, VideoExists: true, Muted: other.muted}
		}
	}
	return RemoteVideoState{}
}

func (s *FakeSession) LocalJID(ctx context.Context) (string, error) {
	v, err := s.Eval(ctx, LocalJIDScript)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

func (s *FakeSession) RemoteVideo(ctx context.Context, jid string) (RemoteVideoState, error) {
	if err := ctx.Err(); err != nil {
		return RemoteVideoState{}, err
	}
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	if err := s.ready(); err != nil {
		return RemoteVideoState{}, err
	}
	return s.remoteVideoLocked(jid), nil
}

func (s *FakeSession) Close() error {
	s.conf.mu.Lock()
	defer s.conf.mu.Unlock()
	s.closed = true
	return nil
}
