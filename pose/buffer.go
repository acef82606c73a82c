package pose

import (
	"context"
	"sync"
	"time"

	"go.viam.com/rdk/spatialmath"
)

// DefaultBufferCapacity bounds how many transforms are retained per frame
// pair.
const DefaultBufferCapacity = 100

type framePair struct {
	from, to string
}

type stampedTransform struct {
	at   time.Time
	pose spatialmath.Pose
}

// Buffer is an in-memory, time-indexed transform store implementing Lookup.
// It is the in-process stand-in for a TF listener: transforms are published
// into it as they arrive and looked up by timestamp, within a tolerance.
// Lookups between a frame and itself short-circuit to the identity.
type Buffer struct {
	mu         sync.RWMutex
	tolerance  time.Duration
	capacity   int
	transforms map[framePair][]stampedTransform
}

// NewBuffer returns a Buffer that matches timestamps within the given
// tolerance and keeps at most capacity transforms per frame pair. A zero or
// negative capacity uses DefaultBufferCapacity.
func NewBuffer(tolerance time.Duration, capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		tolerance:  tolerance,
		capacity:   capacity,
		transforms: make(map[framePair][]stampedTransform),
	}
}

// Add publishes the transform from fromFrame to toFrame at the given time.
// Once the capacity is reached the oldest-stamped transform for the pair is
// evicted, even when transforms arrive out of timestamp order.
func (b *Buffer) Add(fromFrame, toFrame string, at time.Time, p spatialmath.Pose) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pair := framePair{from: fromFrame, to: toFrame}
	entries := append(b.transforms[pair], stampedTransform{at: at, pose: p})
	for len(entries) > b.capacity {
		oldest := 0
		for i, entry := range entries[1:] {
			if entry.at.Before(entries[oldest].at) {
				oldest = i + 1
			}
		}
		entries = append(entries[:oldest], entries[oldest+1:]...)
	}
	b.transforms[pair] = entries
}

// CanTransform reports whether a transform is available between the frames
// at the given time. A zero time asks whether any transform exists at all.
func (b *Buffer) CanTransform(ctx context.Context, fromFrame, toFrame string, at time.Time) bool {
	if fromFrame == toFrame {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.transforms[framePair{from: fromFrame, to: toFrame}]
	if at.IsZero() {
		return len(entries) > 0
	}
	_, ok := nearestWithinTolerance(entries, at, b.tolerance)
	return ok
}

// Transform returns the transform between the frames at the given time, or
// the latest available transform if the time is zero.
func (b *Buffer) Transform(ctx context.Context, fromFrame, toFrame string, at time.Time) (spatialmath.Pose, error) {
	if fromFrame == toFrame {
		return spatialmath.NewZeroPose(), nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.transforms[framePair{from: fromFrame, to: toFrame}]
	if len(entries) == 0 {
		return nil, ErrTransformUnavailable
	}
	if at.IsZero() {
		latest := entries[0]
		for _, entry := range entries[1:] {
			if entry.at.After(latest.at) {
				latest = entry
			}
		}
		return latest.pose, nil
	}
	entry, ok := nearestWithinTolerance(entries, at, b.tolerance)
	if !ok {
		return nil, ErrTransformUnavailable
	}
	return entry.pose, nil
}

func nearestWithinTolerance(
	entries []stampedTransform,
	at time.Time,
	tolerance time.Duration,
) (stampedTransform, bool) {
	var nearest stampedTransform
	found := false
	for _, entry := range entries {
		diff := entry.at.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if !found || absDuration(nearest.at.Sub(at)) > diff {
			nearest = entry
			found = true
		}
	}
	return nearest, found
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
