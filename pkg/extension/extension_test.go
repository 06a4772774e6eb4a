package extension

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

type counter struct {
	Base
	inits  *atomic.Int32
	closes *atomic.Int32
	fail   bool
	hits   atomic.Int32
}

func (c *counter) Init(context.Context) error {
	c.inits.Add(1)
	time.Sleep(20 * time.Millisecond)
	if c.fail {
		return errors.New("boom")
	}
	return nil
}

func (c *counter) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *counter) HandleGET(context.Context, *Request) (*Response, error) {
	c.hits.Add(1)
	return Text("ok"), nil
}

func register(t *testing.T, name string, fail *atomic.Bool) (inits, closes *atomic.Int32) {
	t.Helper()
	inits, closes = &atomic.Int32{}, &atomic.Int32{}
	Register(name, func() Extension {
		return &counter{inits: inits, closes: closes, fail: fail != nil && fail.Load()}
	})
	return inits, closes
}

func TestGetOrCreate_ConcurrentInitOnce(t *testing.T) {
	inits, _ := register(t, "test.counter", nil)
	rt := NewRuntime(nil)
	defer rt.Close()

	var wg sync.WaitGroup
	got := make([]Extension, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ext, err := rt.GetOrCreate(context.Background(), "/c", "test.counter")
			assert.NoError(t, err)
			got[i] = ext
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, inits.Load())
	for _, ext := range got {
		assert.Same(t, got[0], ext)
	}
}

func TestGetOrCreate_FailedInitNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	inits, closes := register(t, "test.flaky", &fail)
	rt := NewRuntime(nil)
	defer rt.Close()

	_, err := rt.GetOrCreate(context.Background(), "/f", "test.flaky")
	require.Error(t, err)
	assert.EqualValues(t, 1, closes.Load())

	fail.Store(false)
	_, err = rt.GetOrCreate(context.Background(), "/f", "test.flaky")
	require.NoError(t, err)
	assert.EqualValues(t, 2, inits.Load())
}

func TestGetOrCreate_UnknownHandler(t *testing.T) {
	rt := NewRuntime(nil)
	_, err := rt.GetOrCreate(context.Background(), "/x", "test.nope")
	assert.ErrorIs(t, err, ErrUnknownHandler)
}

func TestDiscardAndClose(t *testing.T) {
	_, closes := register(t, "test.closing", nil)
	rt := NewRuntime(nil)

	_, err := rt.GetOrCreate(context.Background(), "/a", "test.closing")
	require.NoError(t, err)
	_, err = rt.GetOrCreate(context.Background(), "/b", "test.closing")
	require.NoError(t, err)

	rt.Discard("/a")
	assert.EqualValues(t, 1, closes.Load())
	rt.Discard("/a")
	assert.EqualValues(t, 1, closes.Load(), "discard is idempotent")

	require.NoError(t, rt.Close())
	assert.EqualValues(t, 2, closes.Load())

	_, err = rt.GetOrCreate(context.Background(), "/a", "test.closing")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCreate_NotCached(t *testing.T) {
	inits, _ := register(t, "test.once", nil)
	rt := NewRuntime(nil)
	defer rt.Close()

	a, err := rt.Create(context.Background(), "test.once")
	require.NoError(t, err)
	b, err := rt.Create(context.Background(), "test.once")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.EqualValues(t, 2, inits.Load())
}

func TestLearnForget(t *testing.T) {
	_, closes := register(t, "test.learned", nil)
	rt := NewRuntime(nil)
	defer rt.Close()

	d := library.Descriptor{Path: "/l", Type: library.TypeExtension, Extension: &library.ExtensionSpec{Handler: "test.learned"}}
	rt.Learn(d)
	got, ok := rt.Descriptor("/l")
	require.True(t, ok)
	assert.Equal(t, d, got)
	assert.Len(t, rt.Descriptors(), 1)

	_, err := rt.GetOrCreate(context.Background(), "/l", "test.learned")
	require.NoError(t, err)

	rt.Forget("/l")
	_, ok = rt.Descriptor("/l")
	assert.False(t, ok)
	assert.EqualValues(t, 1, closes.Load())
}

func TestServe_Verbs(t *testing.T) {
	ext := &counter{inits: &atomic.Int32{}, closes: &atomic.Int32{}}

	req := &Request{HTTP: httptest.NewRequest(http.MethodGet, "/", nil)}
	resp, err := Serve(context.Background(), ext, req)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	req = &Request{HTTP: httptest.NewRequest(http.MethodHead, "/", nil)}
	_, err = Serve(context.Background(), ext, req)
	require.NoError(t, err, "HEAD falls back to GET")

	req = &Request{HTTP: httptest.NewRequest(http.MethodPost, "/", nil)}
	_, err = Serve(context.Background(), ext, req)
	assert.ErrorIs(t, err, ErrMethodNotAllowed)

	assert.Equal(t, []string{http.MethodGet, http.MethodHead}, Methods(ext))
}

func TestChannel_Echo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, IsUpgrade(r))
		ch, err := Accept(w, r)
		if err != nil {
			return
		}
		defer ch.Close()
		for {
			text, data, err := ch.Receive(r.Context())
			if err != nil {
				return
			}
			if text {
				_ = ch.SendText(strings.ToUpper(string(data)))
			} else {
				_ = ch.SendBinary(data)
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hello")))
	mt, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "HELLO", string(data))
}
