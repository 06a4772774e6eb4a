package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/extension"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
	"github.com/joeydtaylor/steeze-pool/pkg/rpc"
)

// Worker is the worker end of the controller link. It resolves through
// the controller and mirrors replicated extension descriptors into the
// local runtime.
type Worker struct {
	peer    *rpc.Peer
	runtime *extension.Runtime
	log     *zap.Logger
}

func NewWorker(link io.ReadWriteCloser, rt *extension.Runtime, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{peer: rpc.NewPeer(rpc.NewConn(link), log), runtime: rt, log: log}
	w.peer.Handle(library.OpExtensionAdd, w.extensionAdded)
	w.peer.Handle(library.OpExtensionRemove, w.extensionRemoved)
	return w
}

// Stdio links a worker process to its controller over stdin and stdout.
func Stdio() io.ReadWriteCloser { return rpc.Join(os.Stdin, os.Stdout) }

// InheritedListener returns the listener the controller shared with this
// process.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(listenerFD, "steeze-listener")
	if f == nil {
		return nil, fmt.Errorf("cluster: no inherited listener")
	}
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("cluster: inherited listener: %w", err)
	}
	return ln, nil
}

func (w *Worker) Resolve(ctx context.Context, q library.Query) (library.Reply, error) {
	var rep library.Reply
	if err := w.peer.Call(ctx, library.OpResolve, q, &rep); err != nil {
		return library.Reply{}, err
	}
	return rep, nil
}

// Serve runs the link until the controller goes away or ctx ends.
func (w *Worker) Serve(ctx context.Context) error { return w.peer.Serve(ctx) }

// Done is closed when the link has shut down.
func (w *Worker) Done() <-chan struct{} { return w.peer.Done() }

func (w *Worker) Close() error { return w.peer.Close() }

func (w *Worker) extensionAdded(_ context.Context, body json.RawMessage) (any, error) {
	var d library.Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	w.runtime.Learn(d)
	w.log.Debug("extension learned", zap.String("path", d.Path))
	return nil, nil
}

func (w *Worker) extensionRemoved(_ context.Context, body json.RawMessage) (any, error) {
	var d library.Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, err
	}
	w.runtime.Forget(d.Path)
	w.log.Debug("extension forgotten", zap.String("path", d.Path))
	return nil, nil
}
