package gio

import (
	"sync"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/reactorgo/gio/internal/gid"
	"github.com/reactorgo/gio/internal/logging"
	"github.com/reactorgo/gio/internal/poller"
)

const pollTimeout = 10 * time.Second

// loopRegistry tracks which goroutine owns which EventLoop, so that
// constructing a second EventLoop on a goroutine that already owns one is
// caught rather than silently producing two loops racing over the same
// thread-affinity assumptions.
var loopRegistry sync.Map // goroutine id (uint64) -> *EventLoop

// EventLoop is a single-threaded cooperative scheduler: it blocks inside
// its Demultiplexer's Poll call, dispatches every Channel that came back
// ready, then drains its task queue. Exactly one EventLoop may be active
// per goroutine/OS-thread pair (NewEventLoop must be called on the
// goroutine that will later call Loop).
type EventLoop struct {
	demux poller.Demultiplexer
	sink  logging.Sink

	ownerGoroutine uint64

	looping             uatomic.Bool
	quit                uatomic.Bool
	callingPendingTasks uatomic.Bool
	pollReturnTime      uatomic.Int64

	mu           sync.Mutex
	pendingTasks []func()

	wakeupFD     int
	wakeupNotify func() error
	wakeupChan   *Channel

	activeChannels []*Channel
}

// NewEventLoop constructs an EventLoop bound to the calling goroutine. It
// is Setup-fatal (per spec ERROR HANDLING DESIGN) if the Demultiplexer or
// wakeup descriptor cannot be created; the caller decides how to report
// that (Server.Start treats it as fatal).
func NewEventLoop(sink logging.Sink) (*EventLoop, error) {
	if sink == nil {
		sink = logging.NewStdSink()
	}
	owner := gid.Get()
	if _, exists := loopRegistry.Load(owner); exists {
		return nil, ErrLoopExists
	}
	demux, err := poller.New()
	if err != nil {
		return nil, err
	}
	wfd, notify, drain, err := poller.WakeupFD()
	if err != nil {
		demux.Close()
		return nil, err
	}
	l := &EventLoop{
		demux:          demux,
		sink:           sink,
		ownerGoroutine: owner,
		wakeupFD:       wfd,
		wakeupNotify:   notify,
	}
	l.wakeupChan = newChannel(l, wfd)
	l.wakeupChan.SetReadCallback(func(TimePoint) { drain() })
	l.wakeupChan.EnableReading()
	loopRegistry.Store(owner, l)
	return l, nil
}

// IsInLoopThread reports whether the caller is running on this loop's own
// goroutine.
func (l *EventLoop) IsInLoopThread() bool {
	return gid.Get() == l.ownerGoroutine
}

// PollReturnTime is the TimePoint the most recent Poll call returned.
func (l *EventLoop) PollReturnTime() TimePoint {
	return TimePoint(l.pollReturnTime.Load())
}

// Loop is the drive routine: it must be invoked by the owner goroutine and
// blocks until Quit is called.
func (l *EventLoop) Loop() {
	l.looping.Store(true)
	l.quit.Store(false)
	for !l.quit.Load() {
		l.activeChannels = l.activeChannels[:0]
		var active []poller.Channel
		now, err := l.demux.Poll(pollTimeout, &active)
		if err != nil {
			l.sink.Log(logging.Error, "eventloop: poll: %v", err)
			continue
		}
		l.pollReturnTime.Store(now.UnixMicro())
		for _, c := range active {
			ch := c.(*Channel)
			l.dispatch(ch, TimePoint(now.UnixMicro()))
		}
		l.runPendingTasks()
	}
	l.looping.Store(false)
}

func (l *EventLoop) dispatch(ch *Channel, t TimePoint) {
	defer func() {
		if r := recover(); r != nil {
			l.sink.Log(logging.Error, "eventloop: recovered panic in channel callback (fd=%d): %v", ch.FD(), r)
		}
	}()
	ch.handleEvent(t)
}

// Quit requests that Loop return. Called from a foreign goroutine, it also
// wakes the loop so the request is observed promptly rather than after the
// 10-second poll timeout.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.IsInLoopThread() {
		l.wakeup()
	}
}

// RunInLoop runs task immediately if called from the owner goroutine,
// otherwise queues it via QueueInLoop.
func (l *EventLoop) RunInLoop(task func()) {
	if l.IsInLoopThread() {
		task()
		return
	}
	l.QueueInLoop(task)
}

// QueueInLoop appends task under the loop's mutex. It wakes the loop iff
// the caller is foreign, or the loop is currently draining its queue — in
// that second case a just-queued task could otherwise be appended after
// the drain snapshot was already taken and miss this pass. This condition
// is preserved verbatim from the source (spec.md Open Questions).
func (l *EventLoop) QueueInLoop(task func()) {
	if l.quit.Load() {
		l.sink.Log(logging.Warn, "eventloop: %v, task may or may not run", ErrLoopClosed)
	}
	l.mu.Lock()
	l.pendingTasks = append(l.pendingTasks, task)
	l.mu.Unlock()
	if !l.IsInLoopThread() || l.callingPendingTasks.Load() {
		l.wakeup()
	}
}

func (l *EventLoop) wakeup() {
	if err := l.wakeupNotify(); err != nil {
		l.sink.Log(logging.Error, "eventloop: wakeup: %v", err)
	}
}

// runPendingTasks swaps the pending queue into a local slice, releases the
// mutex, then runs every task. Holding no lock during user callbacks is
// what lets a callback queue more work without deadlocking on its own
// append.
func (l *EventLoop) runPendingTasks() {
	l.mu.Lock()
	tasks := l.pendingTasks
	l.pendingTasks = nil
	l.mu.Unlock()

	l.callingPendingTasks.Store(true)
	for _, task := range tasks {
		l.runTask(task)
	}
	l.callingPendingTasks.Store(false)
}

func (l *EventLoop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.sink.Log(logging.Error, "eventloop: recovered panic in queued task: %v", r)
		}
	}()
	task()
}

func (l *EventLoop) updateChannel(ch *Channel) {
	if err := l.demux.UpdateChannel(ch); err != nil {
		l.sink.Log(logging.Error, "eventloop: update channel fd=%d: %v", ch.FD(), err)
	}
}

func (l *EventLoop) removeChannel(ch *Channel) {
	if err := l.demux.RemoveChannel(ch); err != nil {
		l.sink.Log(logging.Error, "eventloop: remove channel fd=%d: %v", ch.FD(), err)
	}
}

func (l *EventLoop) hasChannel(ch *Channel) bool {
	return l.demux.HasChannel(ch)
}

// Close tears down the wakeup channel and the Demultiplexer. Callers must
// ensure Loop has already returned.
func (l *EventLoop) Close() error {
	l.wakeupChan.DisableAll()
	l.wakeupChan.Remove()
	loopRegistry.Delete(l.ownerGoroutine)
	return l.demux.Close()
}
