package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source produces one Observation per sampling tick. Implementations backed
// by hardware may block or fail; callers go through SampleOrUnavailable.
type Source interface {
	Kind() Kind
	Sample(ctx context.Context) (Observation, error)
}

// SampleOrUnavailable samples src and converts any failure into the neutral
// Unavailable reading: an error, a panic, a payload of the wrong kind, or
// exceeding timeout (when timeout > 0).
func SampleOrUnavailable(ctx context.Context, src Source, timeout time.Duration, log logrus.FieldLogger) Observation {
	kind := src.Kind()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		obs Observation
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("source panic: %v", r)}
			}
		}()
		o, err := src.Sample(ctx)
		ch <- result{obs: o, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		log.WithField("source", kind).WithError(res.err).Debug("source unavailable")
		return Unavailable(kind)
	}
	if res.obs.Kind != kind || !res.obs.Valid() {
		log.WithField("source", kind).Debug("source returned malformed observation")
		return Unavailable(kind)
	}
	res.obs.Available = true
	return res.obs
}

// Set is the group of sources sampled together on every tick.
type Set struct {
	Sources []Source
	// Timeout bounds each individual Sample call; zero means no bound.
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// SampleAll samples every source concurrently. Kinds with no registered
// source come back as Unavailable.
func (s Set) SampleAll(ctx context.Context) Reading {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	obs := make([]Observation, len(s.Sources))
	var g errgroup.Group
	for i, src := range s.Sources {
		g.Go(func() error {
			obs[i] = SampleOrUnavailable(ctx, src, s.Timeout, log)
			return nil
		})
	}
	_ = g.Wait()

	r := Reading{
		Face:     Unavailable(KindFace),
		Voice:    Unavailable(KindVoice),
		Keyboard: Unavailable(KindKeyboard),
		Mouse:    Unavailable(KindMouse),
	}
	for _, o := range obs {
		r.Put(o)
	}
	return r
}
