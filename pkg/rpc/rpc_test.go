package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link connects two peers over an in-memory pipe and serves both.
func link(t *testing.T) (a, b *Peer) {
	t.Helper()
	ca, cb := net.Pipe()
	a, b = NewPeer(NewConn(ca), nil), NewPeer(NewConn(cb), nil)
	return a, b
}

func serve(t *testing.T, peers ...*Peer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()
			_ = p.Serve(ctx)
		}(p)
	}
	t.Cleanup(func() {
		cancel()
		for _, p := range peers {
			_ = p.Close()
		}
		wg.Wait()
	})
}

type sumIn struct{ A, B int }

func TestCall(t *testing.T) {
	client, server := link(t)
	server.Handle("sum", func(_ context.Context, body json.RawMessage) (any, error) {
		var in sumIn
		if err := json.Unmarshal(body, &in); err != nil {
			return nil, err
		}
		return in.A + in.B, nil
	})
	server.Handle("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("nope")
	})
	server.Handle("panic", func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	})
	serve(t, client, server)

	var out int
	require.NoError(t, client.Call(context.Background(), "sum", sumIn{2, 3}, &out))
	assert.Equal(t, 5, out)

	var re *RemoteError
	err := client.Call(context.Background(), "fail", nil, nil)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.Msg)

	err = client.Call(context.Background(), "panic", nil, nil)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "internal error", re.Msg)

	err = client.Call(context.Background(), "missing", nil, nil)
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Msg, "unknown op")
	assert.Zero(t, client.Pending())
}

func TestCall_ConcurrentOutOfOrder(t *testing.T) {
	client, server := link(t)
	server.Handle("sleep", func(_ context.Context, body json.RawMessage) (any, error) {
		var ms int
		_ = json.Unmarshal(body, &ms)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return ms, nil
	})
	serve(t, client, server)

	var wg sync.WaitGroup
	for i := 10; i > 0; i-- {
		wg.Add(1)
		go func(ms int) {
			defer wg.Done()
			var out int
			assert.NoError(t, client.Call(context.Background(), "sleep", ms*5, &out))
			assert.Equal(t, ms*5, out, "each reply reaches its own caller")
		}(i)
	}
	wg.Wait()
}

func TestCall_ContextCancel(t *testing.T) {
	client, server := link(t)
	release := make(chan struct{})
	server.Handle("block", func(context.Context, json.RawMessage) (any, error) {
		<-release
		return "late", nil
	})
	serve(t, client, server)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := client.Call(ctx, "block", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, client.Pending(), "abandoned trap is removed")
}

func TestClose_FailsPending(t *testing.T) {
	client, server := link(t)
	server.Handle("block", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	serve(t, client, server)

	errc := make(chan error, 1)
	go func() { errc <- client.Call(context.Background(), "block", nil, nil) }()
	require.Eventually(t, func() bool { return client.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, server.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed on close")
	}
}

func TestNotify_InOrder(t *testing.T) {
	a, b := link(t)
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	b.Handle("n", func(_ context.Context, body json.RawMessage) (any, error) {
		var n int
		_ = json.Unmarshal(body, &n)
		mu.Lock()
		got = append(got, n)
		if len(got) == 50 {
			close(done)
		}
		mu.Unlock()
		return nil, nil
	})
	serve(t, a, b)

	for i := 0; i < 50; i++ {
		require.NoError(t, a.Notify("n", i))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifications not delivered")
	}
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestTraps_ExpectMany(t *testing.T) {
	ts := NewTraps()
	tr := ts.Open(3)
	assert.Equal(t, 1, ts.Len())

	for i := 0; i < 2; i++ {
		require.True(t, ts.Deliver(Message{ID: tr.ID(), Kind: KindReply}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := tr.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "not resolved before the third reply")

	require.True(t, ts.Deliver(Message{ID: tr.ID(), Kind: KindReply}))
	replies, err := tr.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, replies, 3)
	assert.Zero(t, ts.Len())
	assert.False(t, ts.Deliver(Message{ID: tr.ID()}), "resolved trap is gone")

	other := ts.Open(1)
	assert.NotEqual(t, tr.ID(), other.ID())
	ts.Cancel(other.ID(), ErrClosed)
	_, err = other.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

// root <- mid <- leaf: the leaf's call is answered by the root through
// the relay, and the reply retraces the path.
func TestRelay_MultiHop(t *testing.T) {
	rootSide, midUp := link(t)
	midDown, leaf := link(t)
	otherDown, other := link(t)

	rootSide.Handle("whoami", func(_ context.Context, body json.RawMessage) (any, error) {
		var name string
		_ = json.Unmarshal(body, &name)
		return "hello " + name, nil
	})

	relay := NewRelay(midUp, nil)
	leafID := relay.Attach(midDown)
	otherID := relay.Attach(otherDown)
	assert.NotEqual(t, leafID, otherID)

	serve(t, rootSide, midUp, midDown, leaf, otherDown, other)

	var wg sync.WaitGroup
	for _, c := range []struct {
		p    *Peer
		name string
	}{{leaf, "leaf"}, {other, "other"}} {
		wg.Add(1)
		go func(p *Peer, name string) {
			defer wg.Done()
			var out string
			assert.NoError(t, p.Call(context.Background(), "whoami", name, &out))
			assert.Equal(t, "hello "+name, out)
		}(c.p, c.name)
	}
	wg.Wait()
	assert.Zero(t, leaf.Pending())
	assert.Zero(t, midUp.Pending(), "relayed calls never occupy the relay's own traps")

	notified := make(chan string, 2)
	for _, p := range []*Peer{leaf, other} {
		p.Handle("hi", func(_ context.Context, body json.RawMessage) (any, error) {
			var s string
			_ = json.Unmarshal(body, &s)
			notified <- s
			return nil, nil
		})
	}
	relay.Broadcast("hi", "all")
	for i := 0; i < 2; i++ {
		select {
		case s := <-notified:
			assert.Equal(t, "all", s)
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast not delivered")
		}
	}
}

func TestRelay_ClosedParentFailsCall(t *testing.T) {
	rootSide, midUp := link(t)
	midDown, leaf := link(t)

	NewRelay(midUp, nil).Attach(midDown)
	serve(t, midDown, leaf)
	require.NoError(t, midUp.Close())
	require.NoError(t, rootSide.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := leaf.Call(ctx, "whoami", "leaf", nil)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	assert.Equal(t, "whoami", remote.Op)
	assert.NoError(t, ctx.Err(), "the call must fail fast, not wait for the deadline")
	assert.Zero(t, leaf.Pending())
}
