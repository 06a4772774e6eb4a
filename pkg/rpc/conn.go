package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

const maxFrame = 64 << 20

// Conn frames Messages over a byte stream. Send is safe for concurrent
// use; Receive must be called from one goroutine.
type Conn struct {
	dec *json.Decoder
	w   io.Writer
	c   io.Closer
	wmu sync.Mutex
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		dec: json.NewDecoder(bufio.NewReaderSize(rwc, 64<<10)),
		w:   rwc,
		c:   rwc,
	}
}

func (c *Conn) Send(m *Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if len(b) > maxFrame {
		return errors.New("rpc: frame too large")
	}
	b = append(b, '\n')
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.w.Write(b)
	return err
}

func (c *Conn) Receive() (*Message, error) {
	var m Message
	if err := c.dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Conn) Close() error { return c.c.Close() }

// Join pairs a read side and a write side, such as a child process's
// stdout and stdin, into one stream. Close closes both.
func Join(r io.ReadCloser, w io.WriteCloser) io.ReadWriteCloser {
	return &joined{r: r, w: w}
}

type joined struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (j *joined) Read(p []byte) (int, error)  { return j.r.Read(p) }
func (j *joined) Write(p []byte) (int, error) { return j.w.Write(p) }
func (j *joined) Close() error                { return errors.Join(j.w.Close(), j.r.Close()) }
