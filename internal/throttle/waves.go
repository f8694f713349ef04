// Package throttle runs units of work in fixed-size waves separated by a
// pause, which keeps bursty RPC fan-out under a provider's rate limit.
package throttle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSize  = 10
	DefaultDelay = time.Second
)

// Waves splits work into sequential waves of at most Size concurrent units and
// pauses Delay between waves. The zero value uses the defaults.
type Waves struct {
	Size  int
	Delay time.Duration

	// OnWave, when set, is called before each wave with the wave index and
	// the number of units in it.
	OnWave func(wave, units int)

	sleep func(context.Context, time.Duration) error
}

// Count returns the number of waves Run uses for n units.
func (w Waves) Count(n int) int {
	if n <= 0 {
		return 0
	}
	size := w.size()
	return (n + size - 1) / size
}

// Run calls fn once for every index in [0,n). Every unit of a wave finishes
// before the next wave starts. An error returned by fn stops further waves and
// is returned once the current wave settles. Units that must not abort the run
// should handle their own failures and return nil.
func (w Waves) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	size := w.size()
	waves := w.Count(n)
	for wave := 0; wave < waves; wave++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := wave * size
		end := min(start+size, n)
		if w.OnWave != nil {
			w.OnWave(wave, end-start)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(size)
		for i := start; i < end; i++ {
			g.Go(func() error {
				return fn(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if wave < waves-1 && w.Delay > 0 {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w Waves) size() int {
	if w.Size <= 0 {
		return DefaultSize
	}
	return w.Size
}

func (w Waves) pause(ctx context.Context) error {
	if w.sleep != nil {
		return w.sleep(ctx, w.Delay)
	}
	timer := time.NewTimer(w.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
