package core

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Clock returns the current time
type Clock func() time.Time

// NewTime creates a new time service, a nil clock uses time.Now
func NewTime(now Clock) Time {
	if now == nil {
		now = time.Now
	}
	return Time{now: now}
}

// Time hands out stopwatches sharing one clock
type Time struct {
	now Clock
}

// Start starts a labelled stopwatch
func (t Time) Start(label string) Stopwatch {
	return Stopwatch{
		label: label,
		start: t.now(),
		now:   t.now,
	}
}

// Measure runs fn and logs the elapsed wall time under label.
// The time is logged even if fn fails or panics.
func (t Time) Measure(log logrus.FieldLogger, label string, fn func() error) (elapsed time.Duration, err error) {
	sw := t.Start(label)
	defer func() {
		elapsed = sw.Stop(log)
	}()
	return 0, fn()
}

// Stopwatch measures wall time from its start
type Stopwatch struct {
	label string
	start time.Time
	now   Clock
}

// Elapsed returns the time passed since start
func (s Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Stop logs the elapsed time in seconds and returns it
func (s Stopwatch) Stop(log logrus.FieldLogger) time.Duration {
	elapsed := s.Elapsed()
	log.WithField("elapsed", elapsed).Infof("%s %g seconds", s.label, elapsed.Seconds())
	return elapsed
}
