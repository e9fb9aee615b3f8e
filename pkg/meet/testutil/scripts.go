package testutil

// DOM contract of the conference page.
const (
	// VideoMutedXPath matches any video-muted indicator, local or remote.
	VideoMutedXPath = "//span[@class='videoMuted']/i[@class='icon-camera-disabled']"

	// RemoteVideoMutedXPath only matches indicators inside remote participant
	// containers, so a muted local camera cannot satisfy it.
	RemoteVideoMutedXPath = "//span[starts-with(@id,'participant_')]/span[@class='videoMuted']/i[@class='icon-camera-disabled']"

	// CameraButtonID toggles the local camera.
	CameraButtonID = "toolbar_button_camera"
)

// Scripts evaluated against the page's APP object. Each one guards against a
// page that has not finished loading.
const (
	IsMUCJoinedScript = `() => !!(window.APP && APP.xmpp && APP.xmpp.isMUCJoined())`

	ICEStateScript = `() => (window.APP && APP.xmpp) ? APP.xmpp.iceConnectionState() : 'new'`

	LocalJIDScript = `() => (window.APP && APP.xmpp) ? APP.xmpp.myJid() : null`

	RemoteVideoScript = `(jid) => {
		const res = { streamExists: false, videoExists: false, muted: false };
		const streams = window.APP && APP.RTC ? APP.RTC.remoteStreams : undefined;
		if (streams == undefined || streams[jid] == undefined) {
			return res;
		}
		res.streamExists = true;
		const video = streams[jid]['Video'];
		if (video == undefined) {
			return res;
		}
		res.videoExists = true;
		res.muted = !!video.muted;
		return res;
	}`
)
