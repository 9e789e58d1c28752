package gio

import (
	"fmt"
	"time"
)

// TimePoint is a monotonic-looking microsecond timestamp value type, used
// to stamp each pass of an EventLoop's poll call and hand that stamp down
// to read callbacks.
type TimePoint int64

// Now returns the current wall-clock time as a TimePoint.
func Now() TimePoint {
	return TimePoint(time.Now().UnixMicro())
}

// Time converts back to a time.Time.
func (t TimePoint) Time() time.Time {
	return time.UnixMicro(int64(t))
}

// String renders a fixed-width "YYYY-MM-DD HH:MM:SS.ffffff" form.
func (t TimePoint) String() string {
	tm := t.Time().UTC()
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d",
		tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond()/1000)
}
