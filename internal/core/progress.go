package core

import "time"

// ProgressSink receives (bytesRead, totalBytes) updates synchronously on the
// importing goroutine. Implementations must not block for long: the whole
// pipeline waits on them. Marshal to another goroutine yourself if needed.
type ProgressSink interface {
	OnProgress(bytesRead, totalBytes int64)
}

// ProgressFunc adapts a plain function to ProgressSink.
type ProgressFunc func(bytesRead, totalBytes int64)

// OnProgress calls f.
func (f ProgressFunc) OnProgress(bytesRead, totalBytes int64) { f(bytesRead, totalBytes) }

// MultiProgress fans each update out to every non-nil sink in order.
func MultiProgress(sinks ...ProgressSink) ProgressSink {
	var live []ProgressSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return ProgressFunc(func(read, total int64) {
		for _, s := range live {
			s.OnProgress(read, total)
		}
	})
}

// ThrottledProgress forwards at most one update per interval. An update with
// bytesRead == totalBytes is always forwarded, so the final report is never lost.
type ThrottledProgress struct {
	sink     ProgressSink
	interval time.Duration
	now      func() time.Time
	last     time.Time
	sent     bool
}

// ThrottleProgress wraps sink. An interval <= 0 forwards every update.
func ThrottleProgress(sink ProgressSink, interval time.Duration) *ThrottledProgress {
	return &ThrottledProgress{
		sink:     sink,
		interval: interval,
		now:      time.Now,
	}
}

// OnProgress implements ProgressSink.
func (t *ThrottledProgress) OnProgress(bytesRead, totalBytes int64) {
	if t.sink == nil {
		return
	}
	now := t.now()
	final := totalBytes > 0 && bytesRead >= totalBytes
	if t.sent && !final && t.interval > 0 && now.Sub(t.last) < t.interval {
		return
	}
	t.sent = true
	t.last = now
	t.sink.OnProgress(bytesRead, totalBytes)
}
