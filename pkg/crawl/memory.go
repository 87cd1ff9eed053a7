package crawl

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// memoryGate pauses batch processing while heap usage sits above a
// configured ceiling. A zero limit disables the gate.
type memoryGate struct {
	limitBytes uint64
	pause      time.Duration
	log        *logrus.Entry

	readMem func() uint64 // injectable for tests
}

func newMemoryGate(limitMB int, log *logrus.Entry) *memoryGate {
	g := &memoryGate{
		limitBytes: uint64(limitMB) * 1024 * 1024,
		pause:      2 * time.Second,
		log:        log,
	}
	g.readMem = func() uint64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.HeapAlloc
	}
	return g
}

// wait blocks until heap usage drops below the limit or ctx is cancelled.
func (g *memoryGate) wait(ctx context.Context) error {
	if g.limitBytes == 0 {
		return nil
	}
	for {
		used := g.readMem()
		if used < g.limitBytes {
			return nil
		}
		g.log.WithFields(logrus.Fields{
			"heap_mb":  used / 1024 / 1024,
			"limit_mb": g.limitBytes / 1024 / 1024,
		}).Warn("Memory limit reached, pausing batch processing")
		runtime.GC()

		timer := time.NewTimer(g.pause)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
