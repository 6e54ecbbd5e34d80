package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/duel/internal/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.New[string]()

	for _, s := range []string{"12 28", "52 36", "62 20"} {
		q.Push(s)
	}
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"12 28", "52 36", "62 20"} {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestQueuePeekDoesNotConsume(t *testing.T) {
	q := queue.New[int]()

	_, ok := q.Peek()
	assert.False(t, ok)

	q.Push(7)
	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, q.Len())
}

func TestQueueReadySignalsAfterPush(t *testing.T) {
	q := queue.New[int]()

	select {
	case <-q.Ready():
		t.Fatal("ready fired on an empty queue")
	default:
	}

	q.Push(1)
	q.Push(2) // collapses into the pending wake-up

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("no wake-up after push")
	}

	assert.Equal(t, []int{1, 2}, q.Drain())
	assert.Zero(t, q.Len())
}

// TestQueueUnboundedReuse pushes enough to trigger compaction between pops
// and checks order survives it.
func TestQueueUnboundedReuse(t *testing.T) {
	q := queue.New[int]()
	next := 0

	for round := 0; round < 10; round++ {
		for i := 0; i < 500; i++ {
			q.Push(round*500 + i)
		}
		for i := 0; i < 400; i++ {
			v, ok := q.TryPop()
			require.True(t, ok)
			require.Equal(t, next, v)
			next++
		}
	}

	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		require.Equal(t, next, v)
		next++
	}
	assert.Equal(t, 5000, next)
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := queue.New[int]()
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(i)
		}
	}()

	got := make([]int, 0, total)
	deadline := time.After(5 * time.Second)
	for len(got) < total {
		if v, ok := q.TryPop(); ok {
			got = append(got, v)
			continue
		}
		select {
		case <-q.Ready():
		case <-deadline:
			t.Fatalf("timed out after %d items", len(got))
		}
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}
