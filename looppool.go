package gio

import (
	"strconv"

	"github.com/reactorgo/gio/internal/logging"
)

// LoopPool implements the Reactor's "one acceptor loop, N worker loops"
// topology: the Acceptor always runs on the base loop, while every
// accepted Connection is handed off round-robin to one of the pool's
// worker loops (or back to the base loop if the pool has zero of them).
type LoopPool struct {
	baseLoop *EventLoop
	name     string
	sink     logging.Sink

	numThreads int
	started    bool
	next       int

	threads []*WorkerThread
	loops   []*EventLoop
}

// NewLoopPool constructs a LoopPool anchored on baseLoop, which must be
// the Server's accept loop.
func NewLoopPool(baseLoop *EventLoop, name string, sink logging.Sink) *LoopPool {
	if sink == nil {
		sink = logging.NewStdSink()
	}
	return &LoopPool{baseLoop: baseLoop, name: name, sink: sink}
}

// SetThreadNum sets how many worker loops Start will create. Calling it
// after Start has no effect on the already-launched pool; per spec it
// must be called before Start, so doing otherwise is logged as a
// programmer error rather than silently accepted.
func (p *LoopPool) SetThreadNum(n int) {
	if p.started {
		p.sink.Log(logging.Error, "looppool: %v", ErrThreadNumAfterStart)
		return
	}
	p.numThreads = n
}

// Start launches numThreads worker loops, each running initCb once before
// entering its loop. With zero worker threads, initCb runs once on the
// base loop instead and NextLoop always returns the base loop.
func (p *LoopPool) Start(initCb ThreadInitCallback) {
	p.started = true
	for i := 0; i < p.numThreads; i++ {
		name := p.name + strconv.Itoa(i)
		t := NewWorkerThread(name, initCb, p.sink)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop())
	}
	if p.numThreads == 0 && initCb != nil {
		initCb(p.baseLoop)
	}
}

// NextLoop returns the next worker loop in round-robin order, or the base
// loop if the pool has no worker threads.
func (p *LoopPool) NextLoop() *EventLoop {
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// AllLoops returns every loop in the pool, falling back to a
// single-element slice holding the base loop when there are no worker
// threads.
func (p *LoopPool) AllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}

// Stop shuts down every worker thread in the pool.
func (p *LoopPool) Stop() {
	for i, t := range p.threads {
		t.Stop(p.loops[i])
	}
}
