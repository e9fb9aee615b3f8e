// Package fixture owns the browser sessions of a two-party conference: the
// owner who opens the room and a second participant who joins it.
//
// A Fixture is built once per suite run and handed to every step; there is
// no package-level session state.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thesyncim/meet/pkg/meet/testutil"
)

// Session names used for logging and launching.
const (
	OwnerName             = "owner"
	SecondParticipantName = "second participant"
)

// ErrICEFailed is returned when a session's ICE connection reports "failed".
var ErrICEFailed = errors.New("ice connection failed")

// Launcher starts a new browser-backed driver for the named participant.
type Launcher func(ctx context.Context, name string) (testutil.Driver, error)

// Config holds the room location and connection bounds.
type Config struct {
	RoomURL     string
	JoinTimeout time.Duration // MUC join bound used by Setup
	ICETimeout  time.Duration // bound for WaitForIceCompleted
}

// DefaultConfig returns ten second bounds for roomURL.
func DefaultConfig(roomURL string) Config {
	return Config{
		RoomURL:     roomURL,
		JoinTimeout: 10 * time.Second,
		ICETimeout:  10 * time.Second,
	}
}

// Session is one conference participant.
type Session struct {
	Name string
	testutil.Driver
}

func (s *Session) String() string {
	return s.Name
}

// Option configures a Fixture.
type Option func(*Fixture)

// WithWaiter replaces the waiter used for MUC and ICE polling.
func WithWaiter(w *testutil.Waiter) Option {
	return func(f *Fixture) { f.waiter = w }
}

// WithLogf replaces the logger (default log.Printf).
func WithLogf(logf func(string, ...any)) Option {
	return func(f *Fixture) { f.logf = logf }
}

// Fixture creates, tracks and destroys the conference sessions.
type Fixture struct {
	cfg    Config
	launch Launcher
	waiter *testutil.Waiter
	logf   func(string, ...any)

	mu     sync.Mutex
	owner  *Session
	second *Session
}

// New returns a Fixture that launches sessions with launch.
func New(cfg Config, launch Launcher, opts ...Option) *Fixture {
	f := &Fixture{
		cfg:    cfg,
		launch: launch,
		waiter: testutil.NewWaiter(),
		logf:   log.Printf,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config returns the fixture configuration.
func (f *Fixture) Config() Config {
	return f.cfg
}

// Waiter returns the waiter shared with the steps.
func (f *Fixture) Waiter() *testutil.Waiter {
	return f.waiter
}

// Owner returns the owner session, or nil before it is started.
func (f *Fixture) Owner() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// SecondParticipant returns the current second participant, or nil.
func (f *Fixture) SecondParticipant() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.second
}

// Setup brings up both participants: the browsers are launched in parallel,
// then the owner joins first, the second participant after it, and both
// wait for ICE completion.
func (f *Fixture) Setup(ctx context.Context) error {
	var ownerDrv, secondDrv testutil.Driver
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := f.launch(gctx, OwnerName)
		ownerDrv = d
		return err
	})
	g.Go(func() error {
		d, err := f.launch(gctx, SecondParticipantName)
		secondDrv = d
		return err
	})
	if err := g.Wait(); err != nil {
		for _, d := range []testutil.Driver{ownerDrv, secondDrv} {
			if d != nil {
				_ = d.Close()
			}
		}
		return fmt.Errorf("launch sessions: %w", err)
	}

	owner := &Session{Name: OwnerName, Driver: ownerDrv}
	second := &Session{Name: SecondParticipantName, Driver: secondDrv}
	f.mu.Lock()
	f.owner, f.second = owner, second
	f.mu.Unlock()

	if err := f.join(ctx, owner); err != nil {
		return err
	}
	if err := f.join(ctx, second); err != nil {
		return err
	}
	for _, s := range []*Session{owner, second} {
		if err := f.WaitForIceCompleted(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fixture) join(ctx context.Context, s *Session) error {
	if err := s.Navigate(ctx, f.cfg.RoomURL); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return f.WaitForParticipantToJoinMUC(ctx, s, f.cfg.JoinTimeout)
}

// StartOwner launches the owner and opens the room.
func (f *Fixture) StartOwner(ctx context.Context) (*Session, error) {
	s, err := f.start(ctx, OwnerName)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.owner = s
	f.mu.Unlock()
	return s, nil
}

// StartSecondParticipant launches a new second participant and opens the
// room. The new session replaces the previous handle; the caller waits for
// the MUC join and ICE completion.
func (f *Fixture) StartSecondParticipant(ctx context.Context) (*Session, error) {
	s, err := f.start(ctx, SecondParticipantName)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.second = s
	f.mu.Unlock()
	return s, nil
}

func (f *Fixture) start(ctx context.Context, name string) (*Session, error) {
	d, err := f.launch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", name, err)
	}
	s := &Session{Name: name, Driver: d}
	if err := s.Navigate(ctx, f.cfg.RoomURL); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f.logf("[fixture] %s opened %s", name, f.cfg.RoomURL)
	return s, nil
}

// Close closes s and forgets it if it is the owner or the second participant.
func (f *Fixture) Close(s *Session) error {
	if s == nil {
		return nil
	}
	f.mu.Lock()
	if f.owner == s {
		f.owner = nil
	}
	if f.second == s {
		f.second = nil
	}
	f.mu.Unlock()

	f.logf("[fixture] closing %s", s.Name)
	if err := s.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.Name, err)
	}
	return nil
}

// Teardown closes every open session.
func (f *Fixture) Teardown() error {
	f.mu.Lock()
	sessions := []*Session{f.second, f.owner}
	f.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := f.Close(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WaitForParticipantToJoinMUC blocks until s reports it has joined the room.
func (f *Fixture) WaitForParticipantToJoinMUC(ctx context.Context, s *Session, timeout time.Duration) error {
	ok, err := f.waiter.Poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		v, err := s.Eval(ctx, testutil.IsMUCJoinedScript)
		if err != nil {
			return false, err
		}
		return v.Bool(), nil
	})
	if err != nil {
		return fmt.Errorf("%s joining MUC: %w", s.Name, err)
	}
	if !ok {
		return fmt.Errorf("%s did not join the MUC within %v: %w", s.Name, timeout, testutil.ErrTimeout)
	}
	f.logf("[fixture] %s joined the MUC", s.Name)
	return nil
}

// WaitForIceCompleted blocks until s's ICE connection is connected or
// completed, bounded by Config.ICETimeout.
func (f *Fixture) WaitForIceCompleted(ctx context.Context, s *Session) error {
	var last string
	ok, err := f.waiter.Poll(ctx, f.cfg.ICETimeout, func(ctx context.Context) (bool, error) {
		v, err := s.Eval(ctx, testutil.ICEStateScript)
		if err != nil {
			return false, err
		}
		last = v.Str()
		switch last {
		case "connected", "completed":
			return true, nil
		case "failed":
			return false, ErrICEFailed
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("%s ice: %w", s.Name, err)
	}
	if !ok {
		return fmt.Errorf("%s ice still %q after %v: %w", s.Name, last, f.cfg.ICETimeout, testutil.ErrTimeout)
	}
	f.logf("[fixture] %s ice %s", s.Name, last)
	return nil
}
