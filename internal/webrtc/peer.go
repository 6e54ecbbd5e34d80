// Package webrtc exposes a pre-negotiated, ordered DataChannel as a byte
// stream so a session can run over a direct peer-to-peer link.
package webrtc

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duel/internal/queue"
	"github.com/1ureka/duel/internal/util"
)

const (
	HighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this

	channelLabel = "moves"
)

// Peer wraps a single PeerConnection + DataChannel pair. Inbound messages are
// buffered without bound, so the DataChannel callback never waits on a
// reader that is gated off.
type Peer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox     *queue.Queue[[]byte]
	pending   []byte
	sendReady chan struct{}

	openSignal chan struct{}
	openOnce   sync.Once
	closed     chan struct{}
	closeOnce  sync.Once

	mu       sync.Mutex
	deadline time.Time
	pcState  webrtc.PeerConnectionState
}

func newPeer(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *Peer {
	return &Peer{
		pc:         pc,
		dc:         dc,
		inbox:      queue.New[[]byte](),
		sendReady:  make(chan struct{}, 1),
		openSignal: make(chan struct{}),
		closed:     make(chan struct{}),
		pcState:    webrtc.PeerConnectionStateNew,
	}
}

// NewPeer creates a PeerConnection configured with the given STUN servers
// (possibly none) and a negotiated (ID 0) DataChannel. Both sides create the
// channel on their own, so neither relies on OnDataChannel. The channel is ordered: moves must
// arrive in the order they were played.
func NewPeer(stunServers []string) (*Peer, error) {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	// Loopback candidates let two peers on the same machine connect without
	// any STUN server.
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	ordered := true
	negotiated := true
	id := uint16(0)

	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	p := newPeer(pc, dc)

	dc.OnOpen(func() {
		p.openOnce.Do(func() { close(p.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		p.markClosed()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.deliver(msg.Data)
	})

	dc.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case p.sendReady <- struct{}{}:
		default:
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			p.markClosed()
		}
	})

	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} {
	return p.openSignal
}

// Done returns a channel that is closed once the channel or the connection
// is gone.
func (p *Peer) Done() <-chan struct{} {
	return p.closed
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pcState
}

func (p *Peer) markClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.markClosed()

	var errs []error
	if p.dc != nil {
		errs = append(errs, p.dc.Close())
	}
	if p.pc != nil {
		errs = append(errs, p.pc.Close())
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

// deliver buffers one inbound DataChannel message.
func (p *Peer) deliver(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	p.inbox.Push(buf)
}

// Read returns buffered message bytes, waiting for more when none are
// pending. It reports io.EOF once the channel is closed and drained, and
// os.ErrDeadlineExceeded when the read deadline passes first.
func (p *Peer) Read(b []byte) (int, error) {
	for {
		if len(p.pending) > 0 {
			n := copy(b, p.pending)
			p.pending = p.pending[n:]
			return n, nil
		}
		if msg, ok := p.inbox.TryPop(); ok {
			p.pending = msg
			continue
		}

		p.mu.Lock()
		deadline := p.deadline
		p.mu.Unlock()

		var (
			timer   *time.Timer
			expired <-chan time.Time
		)
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		var err error
		select {
		case <-p.inbox.Ready():
		case <-expired:
			err = os.ErrDeadlineExceeded
		case <-p.closed:
			if msg, ok := p.inbox.TryPop(); ok {
				p.pending = msg
			} else {
				err = io.EOF
			}
		}

		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return 0, err
		}
	}
}

// SetReadDeadline bounds the wait of subsequent Read calls. A zero value
// waits forever.
func (p *Peer) SetReadDeadline(t time.Time) error {
	p.mu.Lock()
	p.deadline = t
	p.mu.Unlock()
	return nil
}

// Write sends b as one text message, blocking while the channel's buffered
// amount is above HighWaterMark.
func (p *Peer) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	if p.dc.BufferedAmount() > uint64(HighWaterMark) {
		select {
		case <-p.sendReady:
		case <-p.closed:
			return 0, io.ErrClosedPipe
		}
	}

	if err := p.dc.SendText(string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
