package testutil

import (
	"context"
	"errors"

	"github.com/ysmood/gson"
)

// ErrSessionClosed is returned by drivers used after Close.
var ErrSessionClosed = errors.New("session closed")

// ErrNoPage is returned when a page operation runs before Navigate.
var ErrNoPage = errors.New("no page open, call Navigate first")

// Driver is the browser-automation surface the helpers depend on. One Driver
// backs one conference participant and receives one command at a time.
type Driver interface {
	// Navigate opens url in the session's page.
	Navigate(ctx context.Context, url string) error

	// HasXPath reports whether the current DOM contains an element matching
	// xpath. It does not wait.
	HasXPath(ctx context.Context, xpath string) (bool, error)

	// ClickByID clicks the element whose id attribute equals id.
	ClickByID(ctx context.Context, id string) error

	// Eval runs a JavaScript function expression with args and returns its result.
	Eval(ctx context.Context, js string, args ...any) (gson.JSON, error)

	Close() error
}

// RemoteVideoState is what an observer knows about another participant's
// remote video stream.
type RemoteVideoState struct {
	StreamExists bool `json:"streamExists"`
	VideoExists  bool `json:"videoExists"`
	Muted        bool `json:"muted"`
}

// MediaDebugger is an optional read-only capability for inspecting the
// conference client's media state. Drivers that can evaluate page script
// implement it.
type MediaDebugger interface {
	// LocalJID returns the session's own room JID.
	LocalJID(ctx context.Context) (string, error)

	// RemoteVideo reports the remote stream registered for jid.
	RemoteVideo(ctx context.Context, jid string) (RemoteVideoState, error)
}
