// Package pose resolves sensor frames to world-frame rigid transforms at
// requested timestamps, with a latest-available fallback when no exact-time
// transform exists.
package pose

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
)

// ErrTransformUnavailable is returned by a Lookup when no transform has ever
// been published between the requested frames.
var ErrTransformUnavailable = errors.New("transform unavailable between frames")

// Lookup is the external transform-lookup service. A zero time passed to
// Transform requests the latest available transform regardless of timestamp.
type Lookup interface {
	CanTransform(ctx context.Context, fromFrame, toFrame string, at time.Time) bool
	Transform(ctx context.Context, fromFrame, toFrame string, at time.Time) (spatialmath.Pose, error)
}

// Stamped is a resolved sensor-to-world transform tagged with the timestamp
// it was requested for. Fallback reports that the exact-time lookup failed
// and the latest available transform was used instead.
type Stamped struct {
	Pose     spatialmath.Pose
	Time     time.Time
	Fallback bool
}

// Resolver resolves poses against a Lookup. Per-event lookup failures are
// recoverable: the caller is expected to drop the event and continue.
type Resolver struct {
	lookup        Lookup
	logger        logging.Logger
	fallbackCount atomic.Int64
}

// NewResolver returns a Resolver backed by the given lookup service.
func NewResolver(lookup Lookup, logger logging.Logger) *Resolver {
	return &Resolver{lookup: lookup, logger: logger}
}

// Resolve returns the transform from sourceFrame to targetFrame at the given
// timestamp. If the transform is not available at that instant, it retries
// once requesting the latest available transform and marks the result as a
// fallback. Equal source and target frames still go through the lookup so
// that error handling stays uniform; a lookup service is free to
// short-circuit that case itself.
func (r *Resolver) Resolve(
	ctx context.Context,
	sourceFrame, targetFrame string,
	at time.Time,
) (Stamped, error) {
	lookupTime := at
	fallback := false
	if !r.lookup.CanTransform(ctx, sourceFrame, targetFrame, at) {
		lookupTime = time.Time{}
		fallback = true
		r.fallbackCount.Add(1)
		r.logger.Warnw("using latest transform instead of timestamp match",
			"source_frame", sourceFrame, "target_frame", targetFrame, "requested_time", at)
	}

	p, err := r.lookup.Transform(ctx, sourceFrame, targetFrame, lookupTime)
	if err != nil {
		return Stamped{}, errors.Wrapf(err, "error getting transform from %s to %s", sourceFrame, targetFrame)
	}
	return Stamped{Pose: p, Time: at, Fallback: fallback}, nil
}

// FallbackCount returns how many resolutions have taken the
// latest-available fallback path.
func (r *Resolver) FallbackCount() int64 {
	return r.fallbackCount.Load()
}
