// Package cluster runs the pool: a controller process that owns the
// registry and supervises worker processes, and the worker side of the
// link between them.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joeydtaylor/steeze-pool/pkg/codec"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
	"github.com/joeydtaylor/steeze-pool/pkg/registry"
	"github.com/joeydtaylor/steeze-pool/pkg/rpc"
)

// Environment handed to worker processes.
const (
	EnvRole     = "STEEZE_ROLE"
	EnvWorkerID = library.EnvWorkerID
	RoleWorker  = "worker"

	// listenerFD is the descriptor number of the shared listener in a
	// worker: the first entry of ExtraFiles.
	listenerFD = 3
)

type ControllerConfig struct {
	Workers      int
	Exe          string   // defaults to the running executable
	Args         []string // defaults to os.Args[1:]
	RestartDelay time.Duration
	StopTimeout  time.Duration
}

// Controller owns the registry and the worker processes. Workers reach
// the registry only through resolve calls on their stdio link.
type Controller struct {
	cfg ControllerConfig
	reg *registry.Registry
	log *zap.Logger

	mu    sync.Mutex
	peers map[int]*workerLink

	cancel context.CancelFunc
	group  *errgroup.Group
	unsub  func()

	onSnapshot func() // runs between the replay snapshot and its sends
}

// workerLink is one attached worker. mu orders descriptor traffic to it:
// the replay and every broadcast hold it for their whole send.
type workerLink struct {
	peer *rpc.Peer
	mu   sync.Mutex
}

func NewController(cfg ControllerConfig, reg *registry.Registry, log *zap.Logger) *Controller {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{cfg: cfg, reg: reg, log: log, peers: map[int]*workerLink{}}
}

// Start subscribes to registry changes and spawns the workers, sharing
// ln with each of them. It returns once every worker has been launched;
// crashed workers are restarted until Stop.
func (c *Controller) Start(ln net.Listener) error {
	f, err := listenerFile(ln)
	if err != nil {
		return err
	}
	exe := c.cfg.Exe
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("cluster: locate executable: %w", err)
		}
	}
	args := c.cfg.Args
	if args == nil {
		args = os.Args[1:]
	}

	c.unsub = c.reg.Subscribe(c.broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	c.cancel, c.group = cancel, g
	for id := 1; id <= c.cfg.Workers; id++ {
		id := id
		g.Go(func() error { return c.supervise(ctx, id, exe, args, f) })
	}
	c.log.Info("workers launched", zap.Int("workers", c.cfg.Workers), zap.String("exe", exe))
	return nil
}

// Stop asks every worker to exit and waits for them.
func (c *Controller) Stop(ctx context.Context) error {
	if c.unsub != nil {
		c.unsub()
	}
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	done := make(chan error, 1)
	go func() { done <- c.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) supervise(ctx context.Context, id int, exe string, args []string, ln *os.File) error {
	for {
		err := c.runWorker(ctx, id, exe, args, ln)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Error("worker exited; restarting",
			zap.Int("worker", id),
			zap.Error(err),
			zap.Duration("delay", c.cfg.RestartDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.RestartDelay):
		}
	}
}

func (c *Controller) runWorker(ctx context.Context, id int, exe string, args []string, ln *os.File) error {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = append(os.Environ(), EnvRole+"="+RoleWorker, EnvWorkerID+"="+strconv.Itoa(id))
	cmd.ExtraFiles = []*os.File{ln}
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = c.cfg.StopTimeout

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker %d: %w", id, err)
	}
	c.log.Info("worker started", zap.Int("worker", id), zap.Int("pid", cmd.Process.Pid))

	serveErr := c.Attach(ctx, id, rpc.Join(stdout, stdin))
	return errors.Join(serveErr, cmd.Wait())
}

// Attach serves one worker link until it closes: it answers the worker's
// resolve calls and keeps its extension descriptors in sync.
func (c *Controller) Attach(ctx context.Context, id int, link io.ReadWriteCloser) error {
	peer := rpc.NewPeer(rpc.NewConn(link), c.log.With(zap.Int("worker", id)))
	peer.Handle(library.OpResolve, c.resolve)

	wl := &workerLink{peer: peer}

	// Registered with its lock held: a change committed after the snapshot
	// below is broadcast to this worker only once the replay is sent.
	wl.mu.Lock()
	c.mu.Lock()
	c.peers[id] = wl
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.peers[id] == wl {
			delete(c.peers, id)
		}
		c.mu.Unlock()
		_ = peer.Close()
	}()

	errc := make(chan error, 1)
	go func() { errc <- peer.Serve(ctx) }()

	c.replay(id, wl)
	wl.mu.Unlock()
	return <-errc
}

func (c *Controller) replay(id int, wl *workerLink) {
	descs := c.reg.Extensions()
	if c.onSnapshot != nil {
		c.onSnapshot()
	}
	for _, d := range descs {
		if err := wl.peer.Notify(library.OpExtensionAdd, d); err != nil {
			c.log.Warn("descriptor replay", zap.Int("worker", id), zap.Error(err))
			return
		}
	}
}

func (c *Controller) resolve(ctx context.Context, body json.RawMessage) (any, error) {
	var q library.Query
	if err := codec.JSONStrict.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("bad query: %w", err)
	}
	return c.reg.Resolve(ctx, q), nil
}

func (c *Controller) broadcast(ev registry.Event) {
	c.mu.Lock()
	links := make(map[int]*workerLink, len(c.peers))
	for id, wl := range c.peers {
		links[id] = wl
	}
	c.mu.Unlock()
	for id, wl := range links {
		wl.mu.Lock()
		err := wl.peer.Notify(ev.Kind.String(), ev.Descriptor)
		wl.mu.Unlock()
		if err != nil {
			c.log.Warn("extension broadcast", zap.Int("worker", id), zap.String("op", ev.Kind.String()), zap.Error(err))
		}
	}
}

// Workers returns the ids of the attached workers.
func (c *Controller) Workers() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.peers))
	for id := range c.peers {
		out = append(out, id)
	}
	return out
}

func listenerFile(ln net.Listener) (*os.File, error) {
	type filer interface{ File() (*os.File, error) }
	fl, ok := ln.(filer)
	if !ok {
		return nil, fmt.Errorf("cluster: listener %T cannot be shared", ln)
	}
	return fl.File()
}
