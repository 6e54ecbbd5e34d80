package signaling

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	remote     []webrtc.SessionDescription
	candidates []string
	remoteErr  error
}

func (f *fakePeer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remote = append(f.remote, sdp)
	return nil
}

func (f *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if len(f.remote) == 0 {
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

const candidateJSON = `{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"}`

func TestReceiverHoldsEarlyCandidates(t *testing.T) {
	peer := &fakePeer{}
	r := &receiver{peer: peer}

	require.NoError(t, r.handle(message{Type: msgTypeCandidate, Candidate: candidateJSON}))
	assert.Empty(t, peer.candidates)
	assert.Len(t, r.early, 1)

	require.NoError(t, r.handle(message{Type: msgTypeAnswer, SDP: "v=0"}))
	require.Len(t, peer.remote, 1)
	assert.Equal(t, webrtc.SDPTypeAnswer, peer.remote[0].Type)
	assert.Len(t, peer.candidates, 1)
	assert.Empty(t, r.early)

	// Later candidates go straight through.
	require.NoError(t, r.handle(message{Type: msgTypeCandidate, Candidate: candidateJSON}))
	assert.Len(t, peer.candidates, 2)
}

func TestReceiverAnswersOffer(t *testing.T) {
	peer := &fakePeer{}
	answered := 0
	r := &receiver{peer: peer, answer: func() error { answered++; return nil }}

	require.NoError(t, r.handle(message{Type: msgTypeOffer, SDP: "v=0"}))
	assert.Equal(t, 1, answered)
	assert.Equal(t, webrtc.SDPTypeOffer, peer.remote[0].Type)
}

func TestReceiverRejectsOfferOnOfferingSide(t *testing.T) {
	r := &receiver{peer: &fakePeer{}}
	assert.Error(t, r.handle(message{Type: msgTypeOffer, SDP: "v=0"}))
}

func TestReceiverBadCandidate(t *testing.T) {
	r := &receiver{peer: &fakePeer{}}
	assert.Error(t, r.handle(message{Type: msgTypeCandidate, Candidate: "{"}))
}

func TestReceiverRemoteDescriptionError(t *testing.T) {
	r := &receiver{peer: &fakePeer{remoteErr: errors.New("bad sdp")}}
	assert.Error(t, r.handle(message{Type: msgTypeAnswer, SDP: "x"}))
}

func TestReceiverIgnoresUnknownType(t *testing.T) {
	r := &receiver{peer: &fakePeer{}}
	assert.NoError(t, r.handle(message{Type: "bye"}))
}
