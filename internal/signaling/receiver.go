package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duel/internal/util"
)

var errUnexpectedOffer = errors.New("unexpected offer on the offering side")

// remotePeer is the part of the peer the receiver drives.
type remotePeer interface {
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
}

// receiver applies inbound signaling messages to the peer. Candidates that
// arrive before the remote description are held back and applied right
// after it, since the other side may trickle them ahead of its answer.
type receiver struct {
	peer   remotePeer
	conn   *websocket.Conn
	answer func() error // nil on the offering side

	haveRemote bool
	early      []webrtc.ICECandidateInit
}

// watch reads messages until the WebSocket fails or is closed.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read WS message: %w", err)
		}
		if err := r.handle(msg); err != nil {
			return err
		}
	}
}

func (r *receiver) handle(msg message) error {
	switch msg.Type {
	case msgTypeOffer:
		if r.answer == nil {
			return errUnexpectedOffer
		}
		if err := r.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
			return err
		}
		return r.answer()

	case msgTypeAnswer:
		return r.setRemote(webrtc.SDPTypeAnswer, msg.SDP)

	case msgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			return fmt.Errorf("failed to parse ICE candidate: %w", err)
		}
		if !r.haveRemote {
			r.early = append(r.early, init)
			return nil
		}
		r.addCandidate(init)

	default:
		util.LogDebug("ignoring signaling message of type %q", msg.Type)
	}
	return nil
}

func (r *receiver) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := r.peer.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", typ, err)
	}
	r.haveRemote = true

	for _, c := range r.early {
		r.addCandidate(c)
	}
	r.early = nil
	return nil
}

// addCandidate is best-effort; one bad candidate must not abort ICE.
func (r *receiver) addCandidate(c webrtc.ICECandidateInit) {
	if err := r.peer.AddICECandidate(c); err != nil {
		util.LogWarning("AddICECandidate failed: %v", err)
	}
}
