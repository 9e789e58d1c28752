//go:build linux

package poller

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

const initEventListSize = 16

// epollDemultiplexer is the Linux backend. It deliberately never arms
// EPOLLET: the core relies on level-triggered readiness, so a fd that still
// has bytes buffered keeps reporting readable on every Poll until the
// consumer drains it.
type epollDemultiplexer struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]Channel
}

func newDemultiplexer() (Demultiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollDemultiplexer{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]Channel),
	}, nil
}

func toEpollEvents(interest uint32) uint32 {
	var ev uint32
	if interest&EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if interest&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (d *epollDemultiplexer) Poll(timeout time.Duration, active *[]Channel) (time.Time, error) {
	timeoutMs := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(d.epfd, d.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	for i := 0; i < n; i++ {
		ev := d.events[i]
		ch, ok := d.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		ch.SetReady(fromEpollEvents(ev.Events))
		*active = append(*active, ch)
	}
	if n == len(d.events) {
		d.events = make([]unix.EpollEvent, 2*len(d.events))
	}
	return now, nil
}

func fromEpollEvents(events uint32) uint32 {
	var r uint32
	if events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		r |= EventRead
	}
	if events&unix.EPOLLOUT != 0 {
		r |= EventWrite
	}
	if events&unix.EPOLLHUP != 0 {
		r |= EventHangup
	}
	if events&unix.EPOLLERR != 0 {
		r |= EventError
	}
	return r
}

func (d *epollDemultiplexer) ctl(op int, ch Channel) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(ch.Interest()), Fd: int32(ch.FD())}
	return unix.EpollCtl(d.epfd, op, ch.FD(), ev)
}

func (d *epollDemultiplexer) UpdateChannel(ch Channel) error {
	switch ch.Index() {
	case StateNew, StateDeleted:
		d.channels[ch.FD()] = ch
		ch.SetIndex(StateAdded)
		return d.ctl(unix.EPOLL_CTL_ADD, ch)
	default: // StateAdded
		if ch.Interest() == EventNone {
			ch.SetIndex(StateDeleted)
			return d.ctl(unix.EPOLL_CTL_DEL, ch)
		}
		return d.ctl(unix.EPOLL_CTL_MOD, ch)
	}
}

func (d *epollDemultiplexer) RemoveChannel(ch Channel) error {
	delete(d.channels, ch.FD())
	var err error
	if ch.Index() == StateAdded {
		err = d.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetIndex(StateNew)
	return err
}

func (d *epollDemultiplexer) HasChannel(ch Channel) bool {
	_, ok := d.channels[ch.FD()]
	return ok
}

func (d *epollDemultiplexer) Close() error {
	return unix.Close(d.epfd)
}

func newWakeupFD() (int, func() error, func(), error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, nil, nil, err
	}
	notify := func() error {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], 1)
		_, err := unix.Write(fd, buf[:])
		return err
	}
	drain := func() {
		var buf [8]byte
		unix.Read(fd, buf[:])
	}
	return fd, notify, drain, nil
}
