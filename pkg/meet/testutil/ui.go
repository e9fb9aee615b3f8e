package testutil

import (
	"context"
	"fmt"
	"log"
)

// ClickOnToolbarButton clicks the toolbar control identified by buttonID.
func ClickOnToolbarButton(ctx context.Context, d Driver, buttonID string) error {
	if err := d.ClickByID(ctx, buttonID); err != nil {
		return fmt.Errorf("toolbar button %s: %w", buttonID, err)
	}
	return nil
}

// DescribeRemoteVideo looks up subject's JID and asks observer what it knows
// about subject's video stream. It is best effort: every failure is logged
// through logf and reported as ok == false, never returned.
func DescribeRemoteVideo(ctx context.Context, subject, observer Driver, logf func(string, ...any)) (state RemoteVideoState, ok bool) {
	if logf == nil {
		logf = log.Printf
	}

	subjectDebug, isDebugger := subject.(MediaDebugger)
	if !isDebugger {
		logf("media debug: %T cannot report its jid", subject)
		return state, false
	}
	observerDebug, isDebugger := observer.(MediaDebugger)
	if !isDebugger {
		logf("media debug: %T cannot inspect remote streams", observer)
		return state, false
	}

	jid, err := subjectDebug.LocalJID(ctx)
	if err != nil {
		logf("media debug: jid lookup failed: %v", err)
		return state, false
	}
	logf("media debug: subject jid %s", jid)

	state, err = observerDebug.RemoteVideo(ctx, jid)
	if err != nil {
		logf("media debug: remote stream lookup failed: %v", err)
		return RemoteVideoState{}, false
	}
	logf("media debug: stream exists %t", state.StreamExists)
	if state.StreamExists {
		logf("media debug: video exists %t", state.VideoExists)
		if state.VideoExists {
			logf("media debug: video muted %t", state.Muted)
		}
	}
	return state, true
}
