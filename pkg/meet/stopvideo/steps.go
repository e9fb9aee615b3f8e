// Package stopvideo checks that stopping and starting a participant's camera
// is reflected in the other participant's view.
//
// The steps share one conference and must run in order: each step starts
// from the DOM state the previous one left behind.
package stopvideo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thesyncim/meet/pkg/meet/fixture"
	"github.com/thesyncim/meet/pkg/meet/testutil"
)

// Bounds for the indicator checks.
const (
	MutedTimeout              = 5 * time.Second
	OwnerUnmutedTimeout       = 10 * time.Second
	ParticipantUnmutedTimeout = 5 * time.Second
	RejoinTimeout             = 10 * time.Second
	settleAfterClose          = 1000 * time.Millisecond
	settleAfterMute           = 500 * time.Millisecond
	settleBeforeNextTest      = 1500 * time.Millisecond
)

var errMissingSession = errors.New("session not started")

// TestContext carries everything a step needs. It is built once per run.
type TestContext struct {
	Fixture *fixture.Fixture
	Logf    func(format string, args ...any)
}

func (tc *TestContext) logf(format string, args ...any) {
	if tc.Logf != nil {
		tc.Logf(format, args...)
	}
}

func (tc *TestContext) waiter() *testutil.Waiter {
	return tc.Fixture.Waiter()
}

func (tc *TestContext) owner() (*fixture.Session, error) {
	s := tc.Fixture.Owner()
	if s == nil {
		return nil, fmt.Errorf("%s: %w", fixture.OwnerName, errMissingSession)
	}
	return s, nil
}

func (tc *TestContext) second() (*fixture.Session, error) {
	s := tc.Fixture.SecondParticipant()
	if s == nil {
		return nil, fmt.Errorf("%s: %w", fixture.SecondParticipantName, errMissingSession)
	}
	return s, nil
}

// toggleAndCheck clicks the camera on actor, then waits on observer for the
// indicator to appear (present) or disappear.
func (tc *TestContext) toggleAndCheck(ctx context.Context, actor, observer *fixture.Session, xpath string, present bool, timeout time.Duration) error {
	if err := testutil.ClickOnToolbarButton(ctx, actor, testutil.CameraButtonID); err != nil {
		return fmt.Errorf("%s: %w", actor.Name, err)
	}
	var err error
	if present {
		err = tc.waiter().ForElement(ctx, observer, xpath, timeout)
	} else {
		err = tc.waiter().ForElementGone(ctx, observer, xpath, timeout)
	}
	if err != nil {
		return fmt.Errorf("%s view: %w", observer.Name, err)
	}
	return nil
}

// StopVideoOnOwnerAndCheck stops the owner's camera; the second participant
// must show the muted indicator.
func StopVideoOnOwnerAndCheck(ctx context.Context, tc *TestContext) error {
	owner, err := tc.owner()
	if err != nil {
		return err
	}
	second, err := tc.second()
	if err != nil {
		return err
	}
	return tc.toggleAndCheck(ctx, owner, second, testutil.VideoMutedXPath, true, MutedTimeout)
}

// StartVideoOnOwnerAndCheck starts the owner's camera again. The check looks
// at remote containers only, so a muted local camera on the second
// participant cannot keep it failing.
func StartVideoOnOwnerAndCheck(ctx context.Context, tc *TestContext) error {
	owner, err := tc.owner()
	if err != nil {
		return err
	}
	second, err := tc.second()
	if err != nil {
		return err
	}
	return tc.toggleAndCheck(ctx, owner, second, testutil.RemoteVideoMutedXPath, false, OwnerUnmutedTimeout)
}

// StopVideoOnParticipantAndCheck stops the second participant's camera; the
// owner must show the muted indicator.
func StopVideoOnParticipantAndCheck(ctx context.Context, tc *TestContext) error {
	owner, err := tc.owner()
	if err != nil {
		return err
	}
	second, err := tc.second()
	if err != nil {
		return err
	}
	return tc.toggleAndCheck(ctx, second, owner, testutil.VideoMutedXPath, true, MutedTimeout)
}

// StartVideoOnParticipantAndCheck starts the second participant's camera;
// the owner's indicator must go away.
func StartVideoOnParticipantAndCheck(ctx context.Context, tc *TestContext) error {
	owner, err := tc.owner()
	if err != nil {
		return err
	}
	second, err := tc.second()
	if err != nil {
		return err
	}
	return tc.toggleAndCheck(ctx, second, owner, testutil.VideoMutedXPath, false, ParticipantUnmutedTimeout)
}

// StopOwnerVideoBeforeSecondParticipantJoins leaves the owner alone, stops
// its camera, brings in a fresh second participant and checks that the
// newcomer sees the owner muted right away. It restarts the owner's camera
// at the end so later suites start clean.
func StopOwnerVideoBeforeSecondParticipantJoins(ctx context.Context, tc *TestContext) error {
	owner, err := tc.owner()
	if err != nil {
		return err
	}
	f := tc.Fixture
	w := tc.waiter()

	if err := f.Close(f.SecondParticipant()); err != nil {
		return err
	}
	if err := w.Pause(ctx, settleAfterClose); err != nil {
		return err
	}

	if err := testutil.ClickOnToolbarButton(ctx, owner, testutil.CameraButtonID); err != nil {
		return fmt.Errorf("%s: %w", owner.Name, err)
	}
	if err := w.Pause(ctx, settleAfterMute); err != nil {
		return err
	}

	second, err := f.StartSecondParticipant(ctx)
	if err != nil {
		return err
	}
	if err := f.WaitForParticipantToJoinMUC(ctx, second, RejoinTimeout); err != nil {
		return err
	}
	if err := f.WaitForIceCompleted(ctx, second); err != nil {
		return err
	}

	if err := w.ForElement(ctx, second, testutil.VideoMutedXPath, MutedTimeout); err != nil {
		return fmt.Errorf("%s view: %w", second.Name, err)
	}

	testutil.DescribeRemoteVideo(ctx, owner.Driver, second.Driver, tc.logf)

	if err := StartVideoOnOwnerAndCheck(ctx, tc); err != nil {
		return err
	}
	return w.Pause(ctx, settleBeforeNextTest)
}
