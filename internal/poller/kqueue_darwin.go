//go:build darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

const initEventListSize = 16

// kqueueDemultiplexer is the Darwin backend. EV_CLEAR is never set: kqueue
// filters re-fire on every Poll while data remains, matching the
// level-triggered contract the core requires on every platform.
type kqueueDemultiplexer struct {
	kq       int
	events   []unix.Kevent_t
	channels map[int]Channel
	// interest remembers which filters are currently registered per fd,
	// since Mod on kqueue is expressed as delete-then-add rather than an
	// in-place update.
	interest map[int]uint32
}

func newDemultiplexer() (Demultiplexer, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueDemultiplexer{
		kq:       kq,
		events:   make([]unix.Kevent_t, initEventListSize),
		channels: make(map[int]Channel),
		interest: make(map[int]uint32),
	}, nil
}

func (d *kqueueDemultiplexer) Poll(timeout time.Duration, active *[]Channel) (time.Time, error) {
	var ts unix.Timespec
	if timeout >= 0 {
		ts = unix.NsecToTimespec(int64(timeout))
	}
	n, err := unix.Kevent(d.kq, nil, d.events, tsPtr(timeout, &ts))
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, err
	}
	seen := make(map[int]uint32, n)
	for i := 0; i < n; i++ {
		ev := d.events[i]
		fd := int(ev.Ident)
		ch, ok := d.channels[fd]
		if !ok {
			continue
		}
		mask := seen[fd]
		switch ev.Filter {
		case unix.EVFILT_READ:
			mask |= EventRead
		case unix.EVFILT_WRITE:
			mask |= EventWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			mask |= EventHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			mask |= EventError
		}
		seen[fd] = mask
	}
	for fd, mask := range seen {
		ch := d.channels[fd]
		ch.SetReady(mask)
		*active = append(*active, ch)
	}
	if n == len(d.events) {
		d.events = make([]unix.Kevent_t, 2*len(d.events))
	}
	return now, nil
}

func tsPtr(timeout time.Duration, ts *unix.Timespec) *unix.Timespec {
	if timeout < 0 {
		return nil
	}
	return ts
}

func (d *kqueueDemultiplexer) changesFor(fd int, from, to uint32) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addOrDel := func(filter int16, want bool) {
		if want {
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_ADD})
		} else {
			changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE})
		}
	}
	wantRead, hadRead := to&EventRead != 0, from&EventRead != 0
	wantWrite, hadWrite := to&EventWrite != 0, from&EventWrite != 0
	if wantRead != hadRead {
		addOrDel(unix.EVFILT_READ, wantRead)
	}
	if wantWrite != hadWrite {
		addOrDel(unix.EVFILT_WRITE, wantWrite)
	}
	return changes
}

func (d *kqueueDemultiplexer) UpdateChannel(ch Channel) error {
	fd := ch.FD()
	switch ch.Index() {
	case StateNew, StateDeleted:
		d.channels[fd] = ch
		ch.SetIndex(StateAdded)
		changes := d.changesFor(fd, EventNone, ch.Interest())
		d.interest[fd] = ch.Interest()
		if len(changes) == 0 {
			return nil
		}
		_, err := unix.Kevent(d.kq, changes, nil, nil)
		return err
	default: // StateAdded
		if ch.Interest() == EventNone {
			changes := d.changesFor(fd, d.interest[fd], EventNone)
			delete(d.interest, fd)
			ch.SetIndex(StateDeleted)
			if len(changes) == 0 {
				return nil
			}
			_, err := unix.Kevent(d.kq, changes, nil, nil)
			return err
		}
		changes := d.changesFor(fd, d.interest[fd], ch.Interest())
		d.interest[fd] = ch.Interest()
		if len(changes) == 0 {
			return nil
		}
		_, err := unix.Kevent(d.kq, changes, nil, nil)
		return err
	}
}

func (d *kqueueDemultiplexer) RemoveChannel(ch Channel) error {
	fd := ch.FD()
	var err error
	if ch.Index() == StateAdded {
		changes := d.changesFor(fd, d.interest[fd], EventNone)
		if len(changes) > 0 {
			_, err = unix.Kevent(d.kq, changes, nil, nil)
		}
	}
	delete(d.channels, fd)
	delete(d.interest, fd)
	ch.SetIndex(StateNew)
	return err
}

func (d *kqueueDemultiplexer) HasChannel(ch Channel) bool {
	_, ok := d.channels[ch.FD()]
	return ok
}

func (d *kqueueDemultiplexer) Close() error {
	return unix.Close(d.kq)
}

func newWakeupFD() (int, func() error, func(), error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, nil, nil, err
	}
	rfd, wfd := fds[0], fds[1]
	unix.SetNonblock(rfd, true)
	unix.SetNonblock(wfd, true)
	notify := func() error {
		_, err := unix.Write(wfd, []byte{1})
		return err
	}
	drain := func() {
		var buf [64]byte
		for {
			n, err := unix.Read(rfd, buf[:])
			if n <= 0 || err != nil {
				return
			}
		}
	}
	return rfd, notify, drain, nil
}
