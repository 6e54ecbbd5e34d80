package game

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/duel/internal/config"
	"github.com/1ureka/duel/internal/protocol"
	"github.com/1ureka/duel/internal/session"
)

// connectedPair returns a Host and a Client session joined over loopback TCP.
func connectedPair(t *testing.T) (*session.Session, *session.Session) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	hostConn := <-accepted
	require.NotNil(t, hostConn)

	host := session.New(config.RoleHost)
	client := session.New(config.RoleClient)
	require.NoError(t, host.Attach(context.Background(), hostConn, session.WorkerOptions{}))
	require.NoError(t, client.Attach(context.Background(), clientConn, session.WorkerOptions{}))
	t.Cleanup(func() {
		host.Close()
		client.Close()
	})
	return host, client
}

// refuseRules rejects one specific move.
type refuseRules struct{ refused protocol.Move }

func (r refuseRules) Apply(m protocol.Move) error {
	if m == r.refused {
		return errors.New("refused")
	}
	return nil
}

// countingRules records how often the engine was consulted.
type countingRules struct {
	calls  int
	refuse bool
}

func (r *countingRules) Apply(protocol.Move) error {
	r.calls++
	if r.refuse {
		return errors.New("refused")
	}
	return nil
}

func TestPlayAfterDisconnectLeavesRulesUntouched(t *testing.T) {
	host, _ := connectedPair(t)
	rules := &countingRules{}
	g := New(rules, host)

	host.Close()

	assert.ErrorIs(t, g.Play(protocol.Move{From: 12, To: 28}), session.ErrNotConnected)
	assert.Zero(t, rules.calls)
	assert.Empty(t, g.History())
}

func TestPlayRefusedByRulesSendsNothing(t *testing.T) {
	host, _ := connectedPair(t)
	rules := &countingRules{refuse: true}
	g := New(rules, host)

	err := g.Play(protocol.Move{From: 12, To: 28})
	assert.ErrorContains(t, err, "illegal move 12 28")
	assert.Equal(t, 1, rules.calls)
	assert.Zero(t, host.Pending())
	assert.Equal(t, uint64(1), host.Turn())
	assert.True(t, g.LocalTurn())
	assert.Empty(t, g.History())
}

func TestPermissive(t *testing.T) {
	assert.NoError(t, Permissive{}.Apply(protocol.Move{From: 0, To: 63}))
	assert.ErrorIs(t, Permissive{}.Apply(protocol.Move{From: 64, To: 0}), protocol.ErrSquareOutside)
}

func TestLocalPlay(t *testing.T) {
	g := New(Permissive{}, nil)

	assert.True(t, g.LocalTurn())
	require.NoError(t, g.Play(protocol.Move{From: 12, To: 28}))
	require.NoError(t, g.Play(protocol.Move{From: 52, To: 36}))
	assert.Error(t, g.Play(protocol.Move{From: 70, To: 1}))

	assert.Equal(t, uint64(3), g.Turn())
	assert.Equal(t, []protocol.Move{{From: 12, To: 28}, {From: 52, To: 36}}, g.History())
	assert.Nil(t, g.Tick())
}

func TestNewSeedsClientTurn(t *testing.T) {
	s := session.New(config.RoleClient)
	New(Permissive{}, s)
	assert.Equal(t, uint64(1), s.Turn())

	s = session.New(config.RoleClient)
	s.SetTurn(5)
	New(Permissive{}, s)
	assert.Equal(t, uint64(5), s.Turn())
}

func TestPlayBeforeConnect(t *testing.T) {
	g := New(Permissive{}, session.New(config.RoleHost))
	assert.False(t, g.LocalTurn())
	assert.ErrorIs(t, g.Play(protocol.Move{From: 12, To: 28}), session.ErrNotConnected)
}

func TestNetworkedExchange(t *testing.T) {
	host, client := connectedPair(t)
	hostGame := New(Permissive{}, host)
	clientGame := New(Permissive{}, client)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	assert.True(t, hostGame.LocalTurn())
	assert.False(t, clientGame.LocalTurn())
	assert.ErrorIs(t, clientGame.Play(protocol.Move{From: 52, To: 36}), session.ErrNotLocalTurn)

	require.NoError(t, hostGame.Play(protocol.Move{From: 12, To: 28}))
	moves, err := clientGame.WaitRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Move{{From: 12, To: 28}}, moves)

	require.NoError(t, clientGame.Play(protocol.Move{From: 52, To: 36}))
	moves, err = hostGame.WaitRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Move{{From: 52, To: 36}}, moves)

	assert.Equal(t, uint64(3), hostGame.Turn())
	assert.Equal(t, uint64(3), clientGame.Turn())
	assert.Equal(t, hostGame.History(), clientGame.History())
}

func TestMalformedAndIllegalLinesAreDropped(t *testing.T) {
	host, client := connectedPair(t)
	New(Permissive{}, host)
	clientGame := New(refuseRules{refused: protocol.Move{From: 1, To: 1}}, client)

	host.Send("hello")
	host.Send("1 2 3")
	host.Send("64 0")
	host.Send("1 1")
	host.Send("12 28")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var got []protocol.Move
	for len(got) == 0 {
		moves, err := clientGame.WaitRemote(ctx)
		require.NoError(t, err)
		got = append(got, moves...)
	}

	assert.Equal(t, []protocol.Move{{From: 12, To: 28}}, got)
	assert.True(t, client.Connected())
	assert.Equal(t, uint64(2), client.Turn())
}

func TestWaitRemoteReportsDisconnect(t *testing.T) {
	host, client := connectedPair(t)
	clientGame := New(Permissive{}, client)

	host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := clientGame.WaitRemote(ctx)
	assert.ErrorIs(t, err, session.ErrPeerClosed)
}
