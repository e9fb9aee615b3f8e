package server

// HTMLPage is the conference client served for every room.
//
// The page keeps a small global APP object that browser automation can query:
// APP.xmpp reports the participant's JID, room membership and ICE state,
// APP.RTC.remoteStreams holds one entry per remote participant keyed by JID
// and APP.UI.toggleVideo flips the local camera.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>Meet</title>
    <meta charset="utf-8">
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            margin: 0;
            background: #1e1e1e;
            color: #eee;
        }
        #videospace {
            display: flex;
            flex-wrap: wrap;
            gap: 12px;
            padding: 20px;
        }
        .videocontainer {
            position: relative;
            display: inline-block;
            width: 320px;
            height: 240px;
            background: #000;
            border-radius: 4px;
            overflow: hidden;
        }
        .videocontainer video {
            width: 100%;
            height: 100%;
            object-fit: cover;
        }
        .videoMuted {
            position: absolute;
            left: 8px;
            bottom: 8px;
            padding: 4px 8px;
            border-radius: 4px;
            background: rgba(234, 67, 53, 0.85);
        }
        .icon-camera-disabled::before { content: "camera off"; font-style: normal; font-size: 12px; }
        #toolbar {
            position: fixed;
            left: 0;
            right: 0;
            bottom: 0;
            display: flex;
            justify-content: center;
            padding: 12px;
            background: #2b2b2b;
        }
        #toolbar a.button {
            display: inline-block;
            min-width: 96px;
            padding: 10px 16px;
            border-radius: 4px;
            background: #4285f4;
            color: white;
            text-align: center;
            text-decoration: none;
            cursor: pointer;
        }
        #toolbar a.button.toggled { background: #ea4335; }
        #status { padding: 8px 20px; color: #aaa; font-size: 13px; }
    </style>
</head>
<body>
    <div id="status">Connecting...</div>
    <div id="videospace">
        <span id="localVideoContainer" class="videocontainer">
            <video id="localVideo" autoplay muted playsinline></video>
        </span>
        <div id="remoteVideos"></div>
    </div>
    <div id="toolbar">
        <a id="toolbar_button_camera" class="button" href="javascript:void(0)">Camera</a>
    </div>

    <script>
    (function () {
        const room = location.pathname.split('/').filter(Boolean).pop();
        const state = { jid: null, joined: false, videoMuted: false, mediaDisabled: false };
        const remoteStreams = {};
        const jidByResource = {};
        const pendingCandidates = [];
        let ws = null;
        let pc = null;
        let localStream = null;
        let chain = Promise.resolve();

        function status(text) {
            document.getElementById('status').textContent = text;
            console.log('[meet] ' + text);
        }

        function resource(jid) {
            return jid.substring(jid.lastIndexOf('/') + 1);
        }

        function send(type, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: type, data: data }));
            }
        }

        function setMutedIndicator(container, muted) {
            let indicator = container.querySelector(':scope > span.videoMuted');
            if (muted && !indicator) {
                indicator = document.createElement('span');
                indicator.className = 'videoMuted';
                const icon = document.createElement('i');
                icon.className = 'icon-camera-disabled';
                indicator.appendChild(icon);
                container.appendChild(indicator);
            } else if (!muted && indicator) {
                indicator.remove();
            }
        }

        function remoteContainer(jid) {
            const id = 'participant_' + resource(jid);
            let container = document.getElementById(id);
            if (!container) {
                container = document.createElement('span');
                container.id = id;
                container.className = 'videocontainer';
                const video = document.createElement('video');
                video.autoplay = true;
                video.muted = true;
                video.playsInline = true;
                container.appendChild(video);
                document.getElementById('remoteVideos').appendChild(container);
            }
            return container;
        }

        function remoteEntry(jid) {
            if (!remoteStreams[jid]) {
                remoteStreams[jid] = { videoMuted: false };
            }
            return remoteStreams[jid];
        }

        function setRemoteMuted(jid, muted) {
            const entry = remoteEntry(jid);
            entry.videoMuted = muted;
            if (entry.Video) {
                entry.Video.muted = muted;
            }
            setMutedIndicator(remoteContainer(jid), muted);
        }

        function addParticipant(jid, muted) {
            jidByResource[resource(jid)] = jid;
            setRemoteMuted(jid, !!muted);
        }

        function removeParticipant(jid) {
            delete remoteStreams[jid];
            delete jidByResource[resource(jid)];
            const container = document.getElementById('participant_' + resource(jid));
            if (container) {
                container.remove();
            }
        }

        function toggleVideo() {
            state.videoMuted = !state.videoMuted;
            if (localStream) {
                localStream.getVideoTracks().forEach(function (t) { t.enabled = !state.videoMuted; });
            }
            setMutedIndicator(document.getElementById('localVideoContainer'), state.videoMuted);
            document.getElementById('toolbar_button_camera').classList.toggle('toggled', state.videoMuted);
            send('presence', { videoMuted: state.videoMuted });
        }

        function createPeerConnection(iceServers) {
            const config = { iceServers: iceServers.length ? [{ urls: iceServers }] : [] };
            pc = new RTCPeerConnection(config);
            if (localStream) {
                localStream.getTracks().forEach(function (t) { pc.addTrack(t, localStream); });
            }
            pc.onicecandidate = function (ev) {
                if (ev.candidate) {
                    send('candidate', ev.candidate.toJSON());
                }
            };
            pc.oniceconnectionstatechange = function () {
                status('ICE ' + pc.iceConnectionState);
            };
            pc.ontrack = function (ev) {
                const stream = ev.streams[0];
                if (!stream) {
                    return;
                }
                const jid = jidByResource[stream.id] || stream.id;
                const entry = remoteEntry(jid);
                entry.Video = { stream: stream, muted: !!entry.videoMuted };
                remoteContainer(jid).querySelector('video').srcObject = stream;
            };
        }

        async function handle(msg) {
            const d = msg.data || {};
            switch (msg.type) {
            case 'joined':
                state.jid = d.jid;
                (d.roster || []).forEach(function (p) { addParticipant(p.jid, p.videoMuted); });
                state.joined = true;
                state.mediaDisabled = !!d.mediaDisabled;
                status('Joined ' + d.room + ' as ' + d.jid);
                if (!state.mediaDisabled) {
                    createPeerConnection(d.iceServers || []);
                }
                if (state.videoMuted) {
                    send('presence', { videoMuted: true });
                }
                break;
            case 'participant-joined':
                addParticipant(d.jid, d.videoMuted);
                break;
            case 'participant-left':
                removeParticipant(d.jid);
                break;
            case 'presence':
                setRemoteMuted(d.jid, !!d.videoMuted);
                break;
            case 'offer':
                if (!pc) {
                    break;
                }
                await pc.setRemoteDescription(d);
                while (pendingCandidates.length) {
                    await pc.addIceCandidate(pendingCandidates.shift());
                }
                await pc.setLocalDescription(await pc.createAnswer());
                send('answer', pc.localDescription.toJSON());
                break;
            case 'candidate':
                if (pc && pc.remoteDescription) {
                    await pc.addIceCandidate(d);
                } else {
                    pendingCandidates.push(d);
                }
                break;
            case 'error':
                console.warn('[meet] server error', d);
                break;
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws/' + room);
            ws.onmessage = function (ev) {
                const msg = JSON.parse(ev.data);
                chain = chain.then(function () { return handle(msg); }).catch(function (e) {
                    console.error('[meet] ' + msg.type, e);
                });
            };
            ws.onclose = function () {
                state.joined = false;
                status('Disconnected');
            };
        }

        window.APP = {
            xmpp: {
                myJid: function () { return state.jid; },
                isMUCJoined: function () { return state.joined; },
                iceConnectionState: function () {
                    if (pc) {
                        return pc.iceConnectionState;
                    }
                    // Signaling-only servers never negotiate media.
                    return state.mediaDisabled ? 'connected' : 'new';
                }
            },
            RTC: { remoteStreams: remoteStreams },
            UI: { toggleVideo: toggleVideo }
        };

        document.getElementById('toolbar_button_camera').addEventListener('click', toggleVideo);

        navigator.mediaDevices.getUserMedia({ video: true, audio: false })
            .then(function (stream) {
                localStream = stream;
                document.getElementById('localVideo').srcObject = stream;
            })
            .catch(function (e) {
                console.error('[meet] getUserMedia', e);
            })
            .then(connect);
    })();
    </script>
</body>
</html>
`
