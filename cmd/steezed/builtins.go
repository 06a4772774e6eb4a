package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joeydtaylor/steeze-pool/pkg/extension"
	"github.com/joeydtaylor/steeze-pool/pkg/function"
)

// registerBuiltins fills the function and extension tables that manifest
// entries refer to by name.
func registerBuiltins() {
	function.Register("echo", echo)
	function.Register("time.now", now)
	extension.Register("counter", func() extension.Extension { return &counter{} })
	extension.Register("chat", func() extension.Extension { return &chat{} })
}

func echo(_ context.Context, a function.Args) (any, error) {
	msg, err := a.String("message")
	if err != nil {
		return nil, err
	}
	times := int64(1)
	if a.Has("times") {
		if times, err = a.Int("times"); err != nil {
			return nil, err
		}
	}
	if times < 1 || times > 100 {
		return nil, &function.ArgError{Name: "times", Err: fmt.Errorf("want 1..100, got %d", times)}
	}
	return strings.Repeat(msg, int(times)), nil
}

func now(context.Context, function.Args) (any, error) {
	return map[string]any{"unix": time.Now().Unix()}, nil
}

// counter counts hits per instance. Each worker holds its own instance.
type counter struct {
	extension.Base
	hits atomic.Int64
}

func (c *counter) HandleGET(context.Context, *extension.Request) (*extension.Response, error) {
	return extension.JSON(map[string]int64{"hits": c.hits.Add(1)})
}

func (c *counter) HandleDELETE(context.Context, *extension.Request) (*extension.Response, error) {
	c.hits.Store(0)
	return extension.Text("reset"), nil
}

// chat echoes every message back on an upgraded channel.
type chat struct{ extension.Base }

func (chat) HandleGET(context.Context, *extension.Request) (*extension.Response, error) {
	return extension.Text("connect with a websocket client"), nil
}

func (chat) HandleUpgrade(ctx context.Context, ch *extension.Channel) error {
	for {
		text, data, err := ch.Receive(ctx)
		if err != nil {
			if extension.IsClosed(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if text {
			err = ch.SendText(string(data))
		} else {
			err = ch.SendBinary(data)
		}
		if err != nil {
			return err
		}
	}
}
