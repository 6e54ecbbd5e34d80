package webrtc

import (
	"bufio"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The stream side of Peer is exercised without a PeerConnection: messages
// are injected the way the DataChannel callback would.

func TestPeerReadConcatenatesMessages(t *testing.T) {
	p := newPeer(nil, nil)

	p.deliver([]byte("12 28\n"))
	p.deliver([]byte("52 "))
	p.deliver([]byte("36\n"))

	r := bufio.NewReader(p)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "12 28\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "52 36\n", line)
}

func TestPeerReadSmallBuffer(t *testing.T) {
	p := newPeer(nil, nil)
	p.deliver([]byte("62 20\n"))

	buf := make([]byte, 2)
	var got []byte
	for len(got) < 6 {
		n, err := p.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "62 20\n", string(got))
}

func TestPeerDeliverCopiesData(t *testing.T) {
	p := newPeer(nil, nil)
	data := []byte("1 2\n")
	p.deliver(data)
	data[0] = '9'

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", string(buf[:n]))
}

func TestPeerReadWaitsForLateMessage(t *testing.T) {
	p := newPeer(nil, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.deliver([]byte("8 16\n"))
	}()

	line, err := bufio.NewReader(p).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "8 16\n", line)
}

func TestPeerReadDeadline(t *testing.T) {
	p := newPeer(nil, nil)
	require.NoError(t, p.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	start := time.Now()
	_, err := p.Read(make([]byte, 8))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	// Data that arrives later is still readable once the deadline is lifted.
	p.deliver([]byte("3 4\n"))
	require.NoError(t, p.SetReadDeadline(time.Time{}))
	n, err := p.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPeerReadEOFAfterCloseDrainsFirst(t *testing.T) {
	p := newPeer(nil, nil)
	p.deliver([]byte("5 6\n"))
	require.NoError(t, p.Close())

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "5 6\n", string(buf[:n]))

	_, err = p.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestPeerWriteAfterClose(t *testing.T) {
	p := newPeer(nil, nil)
	require.NoError(t, p.Close())

	_, err := p.Write([]byte("1 2\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
