package gio

import (
	"runtime"

	"github.com/reactorgo/gio/internal/logging"
)

// ThreadInitCallback runs on a WorkerThread's own goroutine immediately
// after its EventLoop is constructed, before Loop begins — the place to
// tag the loop with a name or otherwise customize it per thread.
type ThreadInitCallback func(*EventLoop)

// WorkerThread pairs a dedicated goroutine with a single EventLoop. The
// goroutine is locked to its OS thread for the lifetime of the loop, which
// is what lets gid-based thread-affinity checks stay meaningful: nothing
// else ever schedules onto that thread.
type WorkerThread struct {
	name   string
	initCb ThreadInitCallback
	sink   logging.Sink

	loop chan *EventLoop
	done chan struct{}
}

// NewWorkerThread constructs a WorkerThread; the goroutine is not started
// until StartLoop is called.
func NewWorkerThread(name string, initCb ThreadInitCallback, sink logging.Sink) *WorkerThread {
	return &WorkerThread{
		name:   name,
		initCb: initCb,
		sink:   sink,
		loop:   make(chan *EventLoop, 1),
		done:   make(chan struct{}),
	}
}

// StartLoop launches the worker goroutine and blocks until the loop it
// constructs is ready, returning that loop. This stands in for the
// source's mutex/condition-variable handshake: the buffered channel is
// the synchronization primitive.
func (w *WorkerThread) StartLoop() *EventLoop {
	go w.run()
	return <-w.loop
}

func (w *WorkerThread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	loop, err := NewEventLoop(w.sink)
	if err != nil {
		sink := w.sink
		if sink == nil {
			sink = logging.NewStdSink()
		}
		sink.Log(logging.Fatal, "workerthread %s: new loop: %v", w.name, err)
		w.loop <- nil
		return
	}
	if w.initCb != nil {
		w.initCb(loop)
	}
	w.loop <- loop

	loop.Loop()
	loop.Close()
}

// Stop requests the underlying loop quit and waits for its goroutine to
// return.
func (w *WorkerThread) Stop(loop *EventLoop) {
	if loop != nil {
		loop.Quit()
	}
	<-w.done
}
