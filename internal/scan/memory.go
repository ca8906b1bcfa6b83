package scan

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// MemoryGuard pauses a scan while heap usage is above a ceiling.
type MemoryGuard struct {
	LimitBytes uint64
	Pause      time.Duration
	Logger     *zap.Logger

	readHeap func() uint64
}

// NewMemoryGuard builds a guard. A zero limit disables it.
func NewMemoryGuard(limitMB uint64, pause time.Duration, logger *zap.Logger) *MemoryGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pause <= 0 {
		pause = 2 * time.Second
	}
	return &MemoryGuard{
		LimitBytes: limitMB * 1024 * 1024,
		Pause:      pause,
		Logger:     logger,
		readHeap:   heapAlloc,
	}
}

// Check forces a GC and pauses once if the heap is above the limit.
// It reports whether a pause happened.
func (g *MemoryGuard) Check(ctx context.Context) (bool, error) {
	if g == nil || g.LimitBytes == 0 {
		return false, nil
	}
	read := g.readHeap
	if read == nil {
		read = heapAlloc
	}

	used := read()
	if used <= g.LimitBytes {
		return false, nil
	}

	g.Logger.Warn("heap above limit, pausing",
		zap.Uint64("heap_bytes", used),
		zap.Uint64("limit_bytes", g.LimitBytes),
		zap.Duration("pause", g.Pause),
	)
	runtime.GC()
	debug.FreeOSMemory()
	if err := Sleep(ctx, g.Pause); err != nil {
		return true, err
	}
	return true, nil
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
